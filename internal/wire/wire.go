// Package wire defines the messages exchanged over the live board channel.
// Every update carries a complete board snapshot; there are no deltas.
package wire

import (
	"bytes"
	"encoding/json"
	"time"

	"taskboard/internal/board"

	"github.com/google/uuid"
)

const (
	EventSubscribeBoard   = "subscribe-board"
	EventUnsubscribeBoard = "unsubscribe-board"
	EventBoardData        = "board-data"
	EventBoardUpdated     = "board-updated"
	EventError            = "error"

	EventGetUserTasks         = "get-user-tasks"
	EventSubscribeUserTasks   = "subscribe-user-tasks"
	EventUnsubscribeUserTasks = "unsubscribe-user-tasks"
	EventUserTasks            = "user-tasks"
	EventTaskCreated          = "task-created"
	EventTaskUpdated          = "task-updated"
	EventTaskDeleted          = "task-deleted"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

func Decode(b []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(b, &env)
	return env, err
}

type SubscribeIntent struct {
	BoardID int64     `json:"boardId"`
	UserID  uuid.UUID `json:"userId"`
}

type UnsubscribeIntent struct {
	BoardID int64 `json:"boardId"`
}

// BoardUpdated is the broadcast sent to every subscriber after a mutation.
type BoardUpdated struct {
	BoardID   int64     `json:"boardId"`
	Timestamp time.Time `json:"timestamp"`
	board.Snapshot
}

// UserTasksIntent asks for the task feed of one user. A zero UserID means
// the caller's own feed.
type UserTasksIntent struct {
	UserID uuid.UUID `json:"userId"`
}

// UserTasks is the complete list of live tasks assigned to a user.
type UserTasks struct {
	UserID    uuid.UUID            `json:"userId"`
	Tasks     []board.AssignedTask `json:"tasks"`
	Timestamp time.Time            `json:"timestamp"`
}

// TaskChange is published after a task mutation. Users lists everyone whose
// feed it touches, including assignees that were just removed.
type TaskChange struct {
	Event   string      `json:"event"`
	TaskID  int64       `json:"taskId"`
	BoardID int64       `json:"boardId"`
	Title   string      `json:"title,omitempty"`
	Users   []uuid.UUID `json:"users"`
}

// TaskNotice is what a feed subscriber receives for task-created,
// task-updated and task-deleted. A fresh user-tasks list follows it.
type TaskNotice struct {
	TaskID  int64  `json:"taskId"`
	BoardID int64  `json:"boardId"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	BoardID int64  `json:"boardId,omitempty"`
}

// DecodeSnapshot reads a snapshot payload. It accepts the bare snapshot and
// the `{"data": snapshot}` wrapping. A null or empty payload yields nil.
func DecodeSnapshot(raw json.RawMessage) (*board.Snapshot, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	if d := bytes.TrimSpace(wrapped.Data); len(d) > 0 {
		if bytes.Equal(d, []byte("null")) {
			return nil, nil
		}
		raw = d
	}

	var s board.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s.IsEmpty() {
		return nil, nil
	}
	return &s, nil
}
