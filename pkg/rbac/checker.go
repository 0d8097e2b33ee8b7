package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/veilhq/gatekeeper/pkg/observability"
	"github.com/veilhq/gatekeeper/pkg/roles"
)

// Checker answers workspace access questions. Results fail closed:
// any store error propagates to the caller instead of producing a
// decision.
type Checker struct {
	store    *Store
	registry *roles.Registry
	metrics  *observability.Metrics
	logger   *observability.Logger
}

func NewChecker(store *Store, registry *roles.Registry, metrics *observability.Metrics, logger *observability.Logger) *Checker {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Checker{
		store:    store,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// CheckAccess decides whether userID may act with at least the
// required role in the workspace. Platform admins and workspace
// owners pass regardless of membership rows; everyone else needs a
// membership whose role level meets the requirement.
func (c *Checker) CheckAccess(ctx context.Context, userID, workspaceID, requiredRole string) (*Decision, error) {
	start := time.Now()
	snap := c.registry.Current()
	requiredLevel := snap.Level(requiredRole)

	decision, err := c.check(ctx, snap, userID, workspaceID, requiredRole, requiredLevel)
	if err != nil {
		c.countCheck("error", "")
		c.observeDuration("error", start)
		return nil, err
	}

	outcome := "denied"
	if decision.Allowed {
		outcome = "allowed"
	}
	c.countCheck(outcome, string(decision.Reason))
	c.observeDuration(outcome, start)
	return decision, nil
}

func (c *Checker) check(ctx context.Context, snap *roles.Snapshot, userID, workspaceID, requiredRole string, requiredLevel int) (*Decision, error) {
	admin, err := c.store.IsPlatformAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if admin {
		return c.allow(snap, roles.RoleSystem, requiredRole, requiredLevel), nil
	}

	owner, err := c.store.GetWorkspaceOwner(ctx, workspaceID)
	if err == ErrWorkspaceNotFound {
		return c.deny(ReasonNotAMember, "", 0, requiredRole, requiredLevel), nil
	}
	if err != nil {
		return nil, err
	}
	if owner == userID {
		return c.allow(snap, roles.RoleOwner, requiredRole, requiredLevel), nil
	}

	role, err := c.store.GetMembershipRole(ctx, workspaceID, userID)
	if err == ErrMembershipNotFound {
		return c.deny(ReasonNotAMember, "", 0, requiredRole, requiredLevel), nil
	}
	if err != nil {
		return nil, err
	}

	level := snap.Level(role)
	if !snap.AtLeast(role, requiredRole) {
		return c.deny(ReasonInsufficientRole, role, level, requiredRole, requiredLevel), nil
	}
	return c.allow(snap, role, requiredRole, requiredLevel), nil
}

// GetEffectiveRole resolves the role the user acts with in the
// workspace, by the same precedence as CheckAccess. Users with no
// standing in the workspace get an empty role.
func (c *Checker) GetEffectiveRole(ctx context.Context, userID, workspaceID string) (string, error) {
	admin, err := c.store.IsPlatformAdmin(ctx, userID)
	if err != nil {
		return "", err
	}
	if admin {
		return roles.RoleSystem, nil
	}

	owner, err := c.store.GetWorkspaceOwner(ctx, workspaceID)
	if err == ErrWorkspaceNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if owner == userID {
		return roles.RoleOwner, nil
	}

	role, err := c.store.GetMembershipRole(ctx, workspaceID, userID)
	if err == ErrMembershipNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// ValidateRole checks a role name against the registry before it is
// written to a membership row.
func (c *Checker) ValidateRole(role string) error {
	if _, ok := c.registry.Get(role); !ok {
		return fmt.Errorf("unknown role %q", role)
	}
	return nil
}

func (c *Checker) allow(snap *roles.Snapshot, role, requiredRole string, requiredLevel int) *Decision {
	return &Decision{
		Allowed:       true,
		Role:          role,
		RoleLevel:     snap.Level(role),
		RequiredRole:  requiredRole,
		RequiredLevel: requiredLevel,
	}
}

func (c *Checker) deny(reason DenyReason, role string, level int, requiredRole string, requiredLevel int) *Decision {
	return &Decision{
		Allowed:       false,
		Reason:        reason,
		Role:          role,
		RoleLevel:     level,
		RequiredRole:  requiredRole,
		RequiredLevel: requiredLevel,
	}
}

func (c *Checker) countCheck(decision, reason string) {
	if c.metrics != nil {
		c.metrics.AccessChecksTotal.WithLabelValues(decision, reason).Inc()
	}
}

func (c *Checker) observeDuration(decision string, start time.Time) {
	if c.metrics != nil {
		c.metrics.AccessCheckDuration.WithLabelValues(decision).Observe(time.Since(start).Seconds())
	}
}
