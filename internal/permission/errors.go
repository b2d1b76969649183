package permission

import "errors"

// ErrDenied matches every *Denial through errors.Is.
var ErrDenied = errors.New("permission denied")

type Action string

const (
	ActionMove     Action = "move"
	ActionEdit     Action = "edit"
	ActionDelete   Action = "delete"
	ActionComplete Action = "complete"
)

// Denial is an authorization failure for one action.
type Denial struct {
	Action Action
}

func Deny(a Action) *Denial {
	return &Denial{Action: a}
}

func (d *Denial) Error() string {
	return d.Message()
}

func (d *Denial) Is(target error) bool {
	return target == ErrDenied
}

// Message is the user-facing text for the denial.
func (d *Denial) Message() string {
	switch d.Action {
	case ActionMove:
		return "You don't have permission to move this task"
	case ActionEdit:
		return "You don't have permission to edit this task"
	case ActionDelete:
		return "You don't have permission to delete this task"
	case ActionComplete:
		return "Only managers and administrators can mark tasks as completed"
	}
	return ErrDenied.Error()
}
