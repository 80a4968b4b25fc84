package entities

import "strings"

type Role string

const (
	RoleViewer  Role = "viewer"
	RoleMember  Role = "member"
	RolePlayer  Role = "player"
	RoleAnalyst Role = "analyst"
	RoleCoach   Role = "coach"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
	RoleOwner   Role = "owner"
)

var roleRank = map[Role]int{
	RoleViewer:  1,
	RoleMember:  2,
	RolePlayer:  2,
	RoleAnalyst: 3,
	RoleCoach:   3,
	RoleManager: 3,
	RoleAdmin:   4,
	RoleOwner:   5,
}

func ParseRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

// AtLeast reports whether r ranks at or above min. Unknown roles rank below everything.
func (r Role) AtLeast(min Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	return have >= roleRank[min]
}

func (r Role) Known() bool {
	_, ok := roleRank[r]
	return ok
}

// Caller is the already authenticated identity behind a request.
type Caller struct {
	UserID string
	OrgID  string
	Role   Role
}
