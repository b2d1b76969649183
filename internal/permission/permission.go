// Package permission decides what an actor may do with a task, based on the
// actor's role and the task's assignees. Every function here is pure.
package permission

import (
	"strings"

	"taskboard/internal/board"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleUser       Role = "user"
)

// ParseRole normalizes a role name. Unknown names yield a role with no capabilities.
func ParseRole(name string) Role {
	return Role(strings.ToLower(strings.TrimSpace(name)))
}

func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

type Capability string

const (
	ViewAdminPanel    Capability = "view_admin_panel"
	ManageUsers       Capability = "manage_users"
	ManageBoards      Capability = "manage_boards"
	CreateAdminUser   Capability = "create_admin_user"
	MoveAnyTask       Capability = "move_any_task"
	MoveOwnTask       Capability = "move_own_task"
	EditAnyTask       Capability = "edit_any_task"
	EditOwnTask       Capability = "edit_own_task"
	DeleteAnyTask     Capability = "delete_any_task"
	DeleteOwnTask     Capability = "delete_own_task"
	CreateTask        Capability = "create_task"
	ViewAllBoards     Capability = "view_all_boards"
	ViewOwnBoards     Capability = "view_own_boards"
	ViewNotifications Capability = "view_notifications"
)

var userCapabilities = []Capability{
	MoveOwnTask,
	EditOwnTask,
	DeleteOwnTask,
	CreateTask,
	ViewOwnBoards,
	ViewNotifications,
}

var managerCapabilities = append(append([]Capability{}, userCapabilities...),
	MoveAnyTask,
	EditAnyTask,
	DeleteAnyTask,
	ViewAllBoards,
)

var adminCapabilities = append(append([]Capability{}, managerCapabilities...),
	ViewAdminPanel,
	ManageUsers,
	ManageBoards,
)

var superAdminCapabilities = append(append([]Capability{}, adminCapabilities...),
	CreateAdminUser,
)

var roleCapabilities = map[Role][]Capability{
	RoleSuperAdmin: superAdminCapabilities,
	RoleAdmin:      adminCapabilities,
	RoleManager:    managerCapabilities,
	RoleUser:       userCapabilities,
}

var creatableRoles = map[Role][]Role{
	RoleSuperAdmin: {RoleSuperAdmin, RoleAdmin, RoleManager, RoleUser},
	RoleAdmin:      {RoleManager, RoleUser},
}

// Capabilities returns the static capability set of a role.
func Capabilities(r Role) []Capability {
	caps := roleCapabilities[r]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

// Gate evaluates permissions for one actor.
type Gate struct {
	Role   Role
	UserID uuid.UUID
}

func NewGate(role Role, userID uuid.UUID) Gate {
	return Gate{Role: role, UserID: userID}
}

func (g Gate) Has(c Capability) bool {
	for _, have := range roleCapabilities[g.Role] {
		if have == c {
			return true
		}
	}
	return false
}

func (g Gate) HasAny(caps ...Capability) bool {
	for _, c := range caps {
		if g.Has(c) {
			return true
		}
	}
	return false
}

func (g Gate) HasAll(caps ...Capability) bool {
	for _, c := range caps {
		if !g.Has(c) {
			return false
		}
	}
	return true
}

// IsTaskOwner reports whether the actor is one of the assignees.
func (g Gate) IsTaskOwner(assignees []uuid.UUID) bool {
	if g.UserID == uuid.Nil {
		return false
	}
	for _, id := range assignees {
		if id == g.UserID {
			return true
		}
	}
	return false
}

func (g Gate) allowed(anyCap, ownCap Capability, assignees []uuid.UUID) bool {
	if g.Has(anyCap) {
		return true
	}
	return g.Has(ownCap) && g.IsTaskOwner(assignees)
}

func (g Gate) CanMoveTask(assignees []uuid.UUID) bool {
	return g.allowed(MoveAnyTask, MoveOwnTask, assignees)
}

func (g Gate) CanEditTask(assignees []uuid.UUID) bool {
	return g.allowed(EditAnyTask, EditOwnTask, assignees)
}

func (g Gate) CanDeleteTask(assignees []uuid.UUID) bool {
	return g.allowed(DeleteAnyTask, DeleteOwnTask, assignees)
}

// CanMoveToColumn applies the column-level rule: only manager-level roles and
// above may move work into the terminal column.
func (g Gate) CanMoveToColumn(to board.ColumnKey) bool {
	if to != board.Terminal {
		return true
	}
	switch g.Role {
	case RoleSuperAdmin, RoleAdmin, RoleManager:
		return true
	}
	return false
}

// CheckTransition runs the move check and then the column rule, returning a
// *Denial describing the first failure.
func (g Gate) CheckTransition(assignees []uuid.UUID, to board.ColumnKey) error {
	if !g.CanMoveTask(assignees) {
		return Deny(ActionMove)
	}
	if !g.CanMoveToColumn(to) {
		return Deny(ActionComplete)
	}
	return nil
}

func (g Gate) IsSuperAdmin() bool {
	return g.Role == RoleSuperAdmin
}

func (g Gate) IsAdminOrAbove() bool {
	return g.Role == RoleSuperAdmin || g.Role == RoleAdmin
}

// CreatableRoles lists the roles this actor may assign to new users.
func (g Gate) CreatableRoles() []Role {
	roles := creatableRoles[g.Role]
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

func (g Gate) CanCreateRole(r Role) bool {
	for _, have := range creatableRoles[g.Role] {
		if have == r {
			return true
		}
	}
	return false
}
