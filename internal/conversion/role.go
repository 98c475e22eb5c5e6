package conversion

import "fmt"

// Role identifies one of the three artifacts a job produces.
type Role int

const (
	// RoleSource is the resynthesized source sample.
	RoleSource Role = iota
	// RoleConverted is the source sample spoken with the target's identity.
	RoleConverted
	// RoleTarget is the resynthesized target sample.
	RoleTarget
)

// Roles lists every role in the order a job produces them.
func Roles() []Role {
	return []Role{RoleSource, RoleConverted, RoleTarget}
}

func (r Role) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleConverted:
		return "converted"
	case RoleTarget:
		return "target"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Reconstruction reports whether the role passes its mel through unchanged.
func (r Role) Reconstruction() bool {
	return r == RoleSource || r == RoleTarget
}
