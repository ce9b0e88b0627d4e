// Package sandbox runs commands under a selected isolation policy and
// reports whether the isolation layer itself blocked the command.
package sandbox

import (
	"fmt"
	"runtime"
)

// Policy controls how much of the host a spawned command may touch.
type Policy string

const (
	// PolicyReadOnly forbids all filesystem writes and network access.
	PolicyReadOnly Policy = "read-only"
	// PolicyWorkspaceWrite permits writes within the workspace root only.
	PolicyWorkspaceWrite Policy = "workspace-write"
	// PolicyDangerFullAccess disables isolation entirely.
	PolicyDangerFullAccess Policy = "danger-full-access"
)

// ParsePolicy converts a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyReadOnly, PolicyWorkspaceWrite, PolicyDangerFullAccess:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown sandbox policy %q", s)
	}
}

// AllowsWrite reports whether the policy permits writes inside the
// workspace root.
func (p Policy) AllowsWrite() bool {
	return p == PolicyWorkspaceWrite || p == PolicyDangerFullAccess
}

// Sandboxed reports whether the policy requests any isolation at all.
func (p Policy) Sandboxed() bool {
	return p != PolicyDangerFullAccess
}

// Platform identifies the isolation mechanism available on this host.
// The kernel mechanism itself is provided externally; the executor only
// selects and reports it.
type Platform string

const (
	PlatformNone     Platform = "none"
	PlatformLandlock Platform = "landlock"
	PlatformSeatbelt Platform = "seatbelt"
)

// SelectPlatform returns the isolation mechanism for the current OS.
func SelectPlatform() Platform {
	switch runtime.GOOS {
	case "linux":
		return PlatformLandlock
	case "darwin":
		return PlatformSeatbelt
	default:
		return PlatformNone
	}
}
