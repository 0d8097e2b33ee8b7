package roles

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/veilhq/gatekeeper/pkg/observability"
)

// Snapshot is an immutable view of the role configuration. Registries
// swap whole snapshots rather than mutating one in place, so lookups
// never observe a half-applied reload.
type Snapshot struct {
	roles        map[string]Role
	requirements map[string]string
}

// Get returns a role by name
func (s *Snapshot) Get(name string) (Role, bool) {
	r, ok := s.roles[name]
	return r, ok
}

// Level returns the hierarchy level of a role, or 0 for unknown roles
func (s *Snapshot) Level(name string) int {
	if r, ok := s.roles[name]; ok {
		return r.Level
	}
	return 0
}

// AtLeast reports whether role a outranks or equals role b. Unknown
// roles have level 0 and never satisfy a known requirement.
func (s *Snapshot) AtLeast(a, b string) bool {
	la := s.Level(a)
	if la == 0 {
		return false
	}
	return la >= s.Level(b)
}

// RequiredRole returns the minimum role for a resource/action pair
func (s *Snapshot) RequiredRole(resource Resource, action Action) string {
	if role, ok := s.requirements[Capability{resource, action}.String()]; ok {
		return role
	}
	return RoleViewer
}

// All returns every role in the snapshot
func (s *Snapshot) All() []Role {
	out := make([]Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	return out
}

// overlayFile is the YAML shape of an on-disk role configuration
// overlay. The role set is closed; an overlay may adjust levels and
// capabilities of built-in roles and override route requirements, but
// it cannot introduce new role names.
type overlayFile struct {
	Roles        []Role `yaml:"roles"`
	Requirements []struct {
		Resource Resource `yaml:"resource"`
		Action   Action   `yaml:"action"`
		Role     string   `yaml:"role"`
	} `yaml:"requirements"`
}

// Registry holds the active role snapshot behind an atomic pointer.
// Reads are lock-free; Reload builds a fresh snapshot and swaps it.
type Registry struct {
	snap   atomic.Pointer[Snapshot]
	path   string
	logger *observability.Logger
}

// NewRegistry builds a registry from the built-in roles plus an
// optional YAML overlay at path (empty path means built-ins only).
func NewRegistry(path string, logger *observability.Logger) (*Registry, error) {
	r := &Registry{path: path, logger: logger}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Current returns the active snapshot
func (r *Registry) Current() *Snapshot {
	return r.snap.Load()
}

// Get returns a role by name from the active snapshot
func (r *Registry) Get(name string) (Role, bool) {
	return r.Current().Get(name)
}

// Level returns the hierarchy level of a role, or 0 for unknown roles
func (r *Registry) Level(name string) int {
	return r.Current().Level(name)
}

// AtLeast reports whether role a outranks or equals role b
func (r *Registry) AtLeast(a, b string) bool {
	return r.Current().AtLeast(a, b)
}

// RequiredRole returns the minimum role for a resource/action pair
func (r *Registry) RequiredRole(resource Resource, action Action) string {
	return r.Current().RequiredRole(resource, action)
}

// Reload rebuilds the snapshot from built-ins plus the overlay file
// and atomically swaps it in. On error the previous snapshot stays
// active.
func (r *Registry) Reload() error {
	snap, err := buildSnapshot(r.path)
	if err != nil {
		return err
	}
	r.snap.Store(snap)
	if r.logger != nil {
		r.logger.WithFields(map[string]interface{}{
			"roles":  len(snap.roles),
			"source": r.path,
		}).Debug("Role registry loaded")
	}
	return nil
}

func buildSnapshot(path string) (*Snapshot, error) {
	snap := &Snapshot{
		roles:        make(map[string]Role),
		requirements: DefaultRequirements(),
	}
	for _, role := range BuiltInRoles() {
		snap.roles[role.Name] = role
	}

	if path == "" {
		return snap, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read role overlay: %w", err)
	}

	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse role overlay: %w", err)
	}

	for _, role := range overlay.Roles {
		existing, ok := snap.roles[role.Name]
		if !ok {
			return nil, fmt.Errorf("unknown role %q in overlay: role set is closed", role.Name)
		}
		if role.Level > 0 {
			existing.Level = role.Level
		}
		if role.DisplayName != "" {
			existing.DisplayName = role.DisplayName
		}
		if role.Description != "" {
			existing.Description = role.Description
		}
		if role.Capabilities != nil {
			existing.Capabilities = role.Capabilities
		}
		snap.roles[role.Name] = existing
	}

	for _, req := range overlay.Requirements {
		if _, ok := snap.roles[req.Role]; !ok {
			return nil, fmt.Errorf("requirement %s:%s references unknown role %q", req.Resource, req.Action, req.Role)
		}
		snap.requirements[Capability{req.Resource, req.Action}.String()] = req.Role
	}

	if err := validateHierarchy(snap); err != nil {
		return nil, err
	}

	return snap, nil
}

// validateHierarchy rejects snapshots where two roles share a level,
// since the comparison in AtLeast assumes a strict ordering.
func validateHierarchy(snap *Snapshot) error {
	seen := make(map[int]string, len(snap.roles))
	for name, role := range snap.roles {
		if role.Level <= 0 {
			return fmt.Errorf("role %q has non-positive level %d", name, role.Level)
		}
		if other, dup := seen[role.Level]; dup {
			return fmt.Errorf("roles %q and %q share hierarchy level %d", name, other, role.Level)
		}
		seen[role.Level] = name
	}
	return nil
}
