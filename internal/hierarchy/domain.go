package hierarchy

import (
	"errors"
	"fmt"
)

// Role identifies a custody level in the organisational ladder.
type Role string

const (
	RoleAgent      Role = "AGENT"
	RoleUnitAdmin  Role = "UNIT_ADMIN"
	RoleAreaAdmin  Role = "AREA_ADMIN"
	RoleForumAdmin Role = "FORUM_ADMIN"
	// RoleBank marks the central bank account as a handover destination.
	// It never holds a custody row of its own.
	RoleBank Role = "BANK"
)

// ParseRole validates a raw role string.
func ParseRole(v string) (Role, error) {
	switch Role(v) {
	case RoleAgent, RoleUnitAdmin, RoleAreaAdmin, RoleForumAdmin, RoleBank:
		return Role(v), nil
	default:
		return "", fmt.Errorf("hierarchy: unknown role %q", v)
	}
}

// Custodial reports whether the role holds a custody balance of its own.
func (r Role) Custodial() bool {
	switch r {
	case RoleAgent, RoleUnitAdmin, RoleAreaAdmin, RoleForumAdmin:
		return true
	default:
		return false
	}
}

// Placement locates a user inside the organisational tree.
type Placement struct {
	UserID  int64
	Role    Role
	UnitID  *int64
	AreaID  *int64
	ForumID *int64
}

// Forum is the top organisational scope.
type Forum struct {
	ID          int64
	Name        string
	AdminUserID int64
}

// Area groups units below a forum.
type Area struct {
	ID          int64
	ForumID     int64
	Name        string
	AdminUserID int64
}

// Unit is the smallest scope, holding field agents.
type Unit struct {
	ID          int64
	AreaID      int64
	ForumID     int64
	Name        string
	AdminUserID int64
}

// Agent records a field agent's membership.
type Agent struct {
	UserID  int64
	UnitID  int64
	AreaID  int64
	ForumID int64
}

var (
	// ErrNotFound indicates the user or scope is absent from the directory.
	ErrNotFound = errors.New("hierarchy: not found")
	// ErrNoAdmin indicates the scope has no admin assigned.
	ErrNoAdmin = errors.New("hierarchy: no admin assigned")
)
