package board

import (
	"time"

	"github.com/google/uuid"
)

// ColumnKey identifies one of the four fixed status columns of a board.
type ColumnKey string

const (
	Todo       ColumnKey = "todo"
	InProgress ColumnKey = "in_progress"
	InReview   ColumnKey = "in_review"
	Completed  ColumnKey = "completed"
)

// Terminal is the column representing completed work.
const Terminal = Completed

var keys = []ColumnKey{Todo, InProgress, InReview, Completed}

var titles = map[ColumnKey]string{
	Todo:       "To Do",
	InProgress: "In Progress",
	InReview:   "In Review",
	Completed:  "Completed",
}

// Keys returns the column keys in board order.
func Keys() []ColumnKey {
	out := make([]ColumnKey, len(keys))
	copy(out, keys)
	return out
}

func (k ColumnKey) Valid() bool {
	_, ok := titles[k]
	return ok
}

func (k ColumnKey) Title() string {
	return titles[k]
}

// StatusID returns the persisted task status id for the column, 0 when unknown.
func (k ColumnKey) StatusID() int {
	for i, key := range keys {
		if key == k {
			return i + 1
		}
	}
	return 0
}

// KeyForStatus maps a persisted status id back to its column key.
func KeyForStatus(id int) (ColumnKey, bool) {
	if id < 1 || id > len(keys) {
		return "", false
	}
	return keys[id-1], true
}

type Priority string

const (
	Low    Priority = "LOW"
	Medium Priority = "MEDIUM"
	High   Priority = "HIGH"
)

func (p Priority) Valid() bool {
	switch p {
	case Low, Medium, High:
		return true
	}
	return false
}

// UserRef is the slice of a user carried by a task assignment.
type UserRef struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
}

type Task struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Priority      Priority   `json:"priority"`
	StartDate     *time.Time `json:"startDate,omitempty"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	Status        ColumnKey  `json:"status"`
	AssignedUsers []UserRef  `json:"assignedUsers,omitempty"`
}

// AssignedTask is one entry of a user's cross-board task feed.
type AssignedTask struct {
	Task
	BoardID   int64  `json:"boardId"`
	BoardName string `json:"boardName"`
}

// AssigneeIDs returns the ids of every assigned user.
func (t *Task) AssigneeIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(t.AssignedUsers))
	for _, u := range t.AssignedUsers {
		ids = append(ids, u.ID)
	}
	return ids
}

func (t *Task) AssignedTo(userID uuid.UUID) bool {
	for _, u := range t.AssignedUsers {
		if u.ID == userID {
			return true
		}
	}
	return false
}

func (t Task) clone() Task {
	c := t
	if t.StartDate != nil {
		d := *t.StartDate
		c.StartDate = &d
	}
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.AssignedUsers != nil {
		c.AssignedUsers = make([]UserRef, len(t.AssignedUsers))
		copy(c.AssignedUsers, t.AssignedUsers)
	}
	return c
}
