// Package rbac decides who may do what inside a workspace.
//
// Access checks resolve in a fixed order: platform admins pass
// everything, the workspace owner acts as owner without needing a
// membership row, and everyone else is compared against the required
// role through the roles registry. Denials carry a reason for audit
// and metrics but clients only see a generic 403.
package rbac
