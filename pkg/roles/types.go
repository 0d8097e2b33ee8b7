package roles

// Resource represents a resource type guarded by the gateway
type Resource string

const (
	ResourceWorkspace Resource = "workspace"
	ResourceMember    Resource = "member"
	ResourceClone     Resource = "clone"
	ResourceSettings  Resource = "settings"
	ResourceSession   Resource = "session"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionInvite Action = "invite"
	ActionRemove Action = "remove"
)

// Capability represents a specific capability (resource + action)
type Capability struct {
	Resource Resource `json:"resource" yaml:"resource"`
	Action   Action   `json:"action" yaml:"action"`
}

// String returns a string representation of the capability
func (c Capability) String() string {
	return string(c.Resource) + ":" + string(c.Action)
}

// Role represents a role with a hierarchy level and a capability set.
// A role implicitly holds every capability of lower-level roles; the
// Capabilities map only lists what the level itself introduces.
type Role struct {
	Name         string                `json:"name" yaml:"name"`
	DisplayName  string                `json:"display_name" yaml:"display_name"`
	Description  string                `json:"description" yaml:"description"`
	Level        int                   `json:"level" yaml:"level"`
	Capabilities map[Resource][]Action `json:"capabilities" yaml:"capabilities"`
}

// Built-in role names, ordered by hierarchy level
const (
	RoleSystem = "system"
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// Built-in hierarchy levels. Higher means more privileged.
const (
	LevelSystem = 100
	LevelOwner  = 80
	LevelAdmin  = 60
	LevelEditor = 40
	LevelViewer = 20
)

// BuiltInRoles returns the seeded role definitions
func BuiltInRoles() []Role {
	return []Role{
		{
			Name:        RoleSystem,
			DisplayName: "Platform Administrator",
			Description: "Unrestricted access across all workspaces",
			Level:       LevelSystem,
			Capabilities: map[Resource][]Action{
				ResourceWorkspace: {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
				ResourceMember:    {ActionInvite, ActionRemove, ActionUpdate},
				ResourceClone:     {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
				ResourceSettings:  {ActionRead, ActionUpdate},
				ResourceSession:   {ActionRead, ActionDelete},
			},
		},
		{
			Name:        RoleOwner,
			DisplayName: "Workspace Owner",
			Description: "Full control of an owned workspace",
			Level:       LevelOwner,
			Capabilities: map[Resource][]Action{
				ResourceWorkspace: {ActionUpdate, ActionDelete},
				ResourceMember:    {ActionInvite, ActionRemove, ActionUpdate},
				ResourceSettings:  {ActionRead, ActionUpdate},
			},
		},
		{
			Name:        RoleAdmin,
			DisplayName: "Workspace Admin",
			Description: "Manage members and delete workspace content",
			Level:       LevelAdmin,
			Capabilities: map[Resource][]Action{
				ResourceMember:   {ActionInvite, ActionRemove},
				ResourceClone:    {ActionDelete},
				ResourceSettings: {ActionRead, ActionUpdate},
			},
		},
		{
			Name:        RoleEditor,
			DisplayName: "Editor",
			Description: "Create and update workspace content",
			Level:       LevelEditor,
			Capabilities: map[Resource][]Action{
				ResourceClone: {ActionCreate, ActionUpdate},
			},
		},
		{
			Name:        RoleViewer,
			DisplayName: "Viewer",
			Description: "Read-only access to workspace content",
			Level:       LevelViewer,
			Capabilities: map[Resource][]Action{
				ResourceWorkspace: {ActionRead},
				ResourceClone:     {ActionRead},
				ResourceMember:    {ActionRead},
			},
		},
	}
}

// DefaultRequirements returns the default minimum role per capability.
// Anything not listed falls back to viewer.
func DefaultRequirements() map[string]string {
	return map[string]string{
		Capability{ResourceWorkspace, ActionDelete}.String(): RoleOwner,
		Capability{ResourceWorkspace, ActionUpdate}.String(): RoleAdmin,
		Capability{ResourceMember, ActionInvite}.String():    RoleAdmin,
		Capability{ResourceMember, ActionRemove}.String():    RoleAdmin,
		Capability{ResourceMember, ActionUpdate}.String():    RoleAdmin,
		Capability{ResourceSettings, ActionUpdate}.String():  RoleAdmin,
		Capability{ResourceClone, ActionDelete}.String():     RoleAdmin,
		Capability{ResourceClone, ActionCreate}.String():     RoleEditor,
		Capability{ResourceClone, ActionUpdate}.String():     RoleEditor,
	}
}
