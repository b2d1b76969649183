// Package projector derives the visible columns and progress counters from
// a board snapshot and the viewer's filters.
package projector

import (
	"math"
	"strings"

	"taskboard/internal/board"

	"github.com/google/uuid"
)

// PriorityAll disables priority filtering.
const PriorityAll board.Priority = "ALL"

type Filter struct {
	Search       string
	Priority     board.Priority
	AssignedToMe bool
}

func DefaultFilter() Filter {
	return Filter{Priority: PriorityAll}
}

// IsZero reports whether the filter lets every task through.
func (f Filter) IsZero() bool {
	return f.Search == "" && (f.Priority == PriorityAll || f.Priority == "") && !f.AssignedToMe
}

// Match applies search, then priority, then assignment.
func (f Filter) Match(t *board.Task, userID uuid.UUID) bool {
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Title), q) &&
			!strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}
	if f.Priority != PriorityAll && f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.AssignedToMe && !t.AssignedTo(userID) {
		return false
	}
	return true
}

// Apply returns the tasks that pass the filter, in their original order.
func (f Filter) Apply(tasks []board.Task, userID uuid.UUID) []board.Task {
	if f.IsZero() {
		return tasks
	}
	out := make([]board.Task, 0, len(tasks))
	for i := range tasks {
		if f.Match(&tasks[i], userID) {
			out = append(out, tasks[i])
		}
	}
	return out
}

type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// Percent is the rounded completion percentage, 0 for an empty board.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return int(math.Round(float64(p.Completed) / float64(p.Total) * 100))
}

type ColumnView struct {
	Key   board.ColumnKey `json:"key"`
	Title string          `json:"title"`
	Tasks []board.Task    `json:"tasks"`
	// Total counts the column's tasks before filtering.
	Total int `json:"total"`
}

type View struct {
	BoardID   int64        `json:"board_id"`
	BoardName string       `json:"board_name"`
	Loading   bool         `json:"loading"`
	Columns   []ColumnView `json:"columns"`
	Progress  Progress     `json:"progress"`
}

// Project builds the view. A nil snapshot yields a loading view with four
// empty columns.
func Project(s *board.Snapshot, f Filter, userID uuid.UUID) View {
	v := View{Loading: s == nil}
	if s != nil {
		v.BoardID = s.BoardID
		v.BoardName = s.BoardName
	}
	for _, key := range board.Keys() {
		col := s.Column(key)
		tasks := f.Apply(col.Tasks, userID)
		v.Columns = append(v.Columns, ColumnView{
			Key:   key,
			Title: key.Title(),
			Tasks: tasks,
			Total: len(col.Tasks),
		})
		v.Progress.Total += len(tasks)
		if key == board.Terminal {
			v.Progress.Completed = len(tasks)
		}
	}
	return v
}

// Column returns the column view for key.
func (v View) Column(key board.ColumnKey) ColumnView {
	for _, c := range v.Columns {
		if c.Key == key {
			return c
		}
	}
	return ColumnView{Key: key, Title: key.Title()}
}
