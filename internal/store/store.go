// Package store holds the client-local state of the board being viewed.
//
// Two sources write to it: authoritative snapshots from the live channel,
// which always replace the whole state, and provisional moves applied by the
// drag controller before the server has confirmed them.
package store

import (
	"errors"
	"sync"

	"taskboard/internal/board"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoBoard         = errors.New("no board loaded")
	ErrUnknownColumn   = errors.New("unknown column")
	ErrTaskNotInColumn = errors.New("task not in source column")
)

// PendingMove is an optimistic move the server has not yet confirmed.
type PendingMove struct {
	TaskID int64
	From   board.ColumnKey
	To     board.ColumnKey
}

type Listener func(*board.Snapshot)

type Store struct {
	log *logrus.Entry

	mu      sync.RWMutex
	current *board.Snapshot
	pending *PendingMove

	lmu       sync.Mutex
	listeners map[uuid.UUID]Listener
}

func New(log *logrus.Entry) *Store {
	return &Store{
		log:       log,
		listeners: make(map[uuid.UUID]Listener),
	}
}

// ApplySnapshot replaces the local state. A nil or empty snapshot means
// there is nothing to show yet and leaves the state untouched.
func (s *Store) ApplySnapshot(snap *board.Snapshot) {
	if snap.IsEmpty() {
		s.log.Debug("ignoring empty snapshot")
		return
	}
	next := snap.Clone()
	next.Normalize()

	s.mu.Lock()
	if s.pending != nil {
		s.log.WithField("task_id", s.pending.TaskID).Debug("snapshot supersedes optimistic move")
	}
	s.current = next
	s.pending = nil
	out := next.Clone()
	s.mu.Unlock()

	s.notify(out)
}

// ApplyOptimisticMove removes the task from `from` and appends it to `to`
// in one step. The next snapshot overwrites the result either way.
func (s *Store) ApplyOptimisticMove(taskID int64, from, to board.ColumnKey) error {
	if !from.Valid() || !to.Valid() {
		return ErrUnknownColumn
	}

	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoBoard
	}
	if from == to {
		s.mu.Unlock()
		return nil
	}

	src := s.current.Columns[from]
	idx := -1
	for i := range src.Tasks {
		if src.Tasks[i].ID == taskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrTaskNotInColumn
	}

	task := src.Tasks[idx]
	task.Status = to
	remaining := make([]board.Task, 0, len(src.Tasks)-1)
	remaining = append(remaining, src.Tasks[:idx]...)
	remaining = append(remaining, src.Tasks[idx+1:]...)
	src.Tasks = remaining

	dst := s.current.Columns[to]
	dst.Tasks = append(dst.Tasks, task)

	s.pending = &PendingMove{TaskID: taskID, From: from, To: to}
	out := s.current.Clone()
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"task_id": taskID,
		"from":    from,
		"to":      to,
	}).Debug("optimistic move applied")
	s.notify(out)
	return nil
}

// Snapshot returns a copy of the current state, nil while loading.
func (s *Store) Snapshot() *board.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

func (s *Store) BoardID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0
	}
	return s.current.BoardID
}

func (s *Store) Pending() *PendingMove {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pending == nil {
		return nil
	}
	p := *s.pending
	return &p
}

// Task returns a copy of the task with id and the column holding it.
func (s *Store) Task(id int64) (board.Task, board.ColumnKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, key, ok := s.current.Locate(id)
	if !ok {
		return board.Task{}, "", false
	}
	return *t, key, true
}

// Reset drops all state, returning the store to loading.
func (s *Store) Reset() {
	s.mu.Lock()
	s.current = nil
	s.pending = nil
	s.mu.Unlock()
}

// Subscribe registers fn to receive a copy of the state after every change.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	id := uuid.New()
	s.lmu.Lock()
	s.listeners[id] = fn
	s.lmu.Unlock()
	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

func (s *Store) notify(snap *board.Snapshot) {
	s.lmu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
