// Package roles provides the role registry: a fixed hierarchy of
// workspace roles with integer levels and capability sets.
//
// The hierarchy, from most to least privileged:
//
//	system (100) > owner (80) > admin (60) > editor (40) > viewer (20)
//
// A role at level N implicitly holds every capability of lower levels,
// so access checks reduce to an integer comparison via AtLeast.
//
// The registry loads built-in definitions at startup, optionally
// merged with a YAML overlay that may adjust levels, capabilities,
// and per-route role requirements (the role set itself is closed).
// The active configuration lives in an immutable Snapshot behind an
// atomic pointer; Reload builds a fresh snapshot and swaps it, and
// Watch triggers reloads when the overlay file changes on disk.
//
// Example overlay:
//
//	roles:
//	  - name: editor
//	    capabilities:
//	      clone: [create, read, update, delete]
//	requirements:
//	  - resource: clone
//	    action: delete
//	    role: editor
package roles
