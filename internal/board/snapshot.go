package board

type Column struct {
	Name  string `json:"name"`
	Tasks []Task `json:"tasks"`
}

// Snapshot is a complete representation of a board's columns and tasks.
// A column missing from Columns is an empty column.
type Snapshot struct {
	BoardID   int64                 `json:"board_id"`
	BoardName string                `json:"board_name"`
	Columns   map[ColumnKey]*Column `json:"columns"`
}

// NewSnapshot returns a snapshot with all four columns present and empty.
func NewSnapshot(boardID int64, name string) *Snapshot {
	s := &Snapshot{BoardID: boardID, BoardName: name}
	s.Normalize()
	return s
}

// Normalize fills in missing columns, drops unknown ones and stamps every
// task with the status of the column that holds it.
func (s *Snapshot) Normalize() {
	cols := make(map[ColumnKey]*Column, len(keys))
	for _, key := range keys {
		col := s.Columns[key]
		if col == nil {
			col = &Column{}
		}
		if col.Name == "" {
			col.Name = key.Title()
		}
		if col.Tasks == nil {
			col.Tasks = []Task{}
		}
		for i := range col.Tasks {
			col.Tasks[i].Status = key
		}
		cols[key] = col
	}
	s.Columns = cols
}

// Column returns the column for key, or an empty column when absent.
func (s *Snapshot) Column(key ColumnKey) *Column {
	if s != nil && s.Columns != nil {
		if col := s.Columns[key]; col != nil {
			return col
		}
	}
	return &Column{Name: key.Title(), Tasks: []Task{}}
}

// IsEmpty reports whether the snapshot carries no usable data.
func (s *Snapshot) IsEmpty() bool {
	if s == nil {
		return true
	}
	return s.BoardID == 0 && s.TaskCount() == 0
}

func (s *Snapshot) TaskCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, col := range s.Columns {
		if col != nil {
			n += len(col.Tasks)
		}
	}
	return n
}

// Locate finds the task with id and the column that holds it.
func (s *Snapshot) Locate(id int64) (*Task, ColumnKey, bool) {
	if s == nil {
		return nil, "", false
	}
	for _, key := range keys {
		col := s.Columns[key]
		if col == nil {
			continue
		}
		for i := range col.Tasks {
			if col.Tasks[i].ID == id {
				return &col.Tasks[i], key, true
			}
		}
	}
	return nil, "", false
}

// TaskIDs maps every task id to the column holding it.
func (s *Snapshot) TaskIDs() map[int64]ColumnKey {
	out := make(map[int64]ColumnKey)
	if s == nil {
		return out
	}
	for key, col := range s.Columns {
		if col == nil {
			continue
		}
		for _, t := range col.Tasks {
			out[t.ID] = key
		}
	}
	return out
}

func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := &Snapshot{
		BoardID:   s.BoardID,
		BoardName: s.BoardName,
		Columns:   make(map[ColumnKey]*Column, len(s.Columns)),
	}
	for key, col := range s.Columns {
		if col == nil {
			continue
		}
		tasks := make([]Task, len(col.Tasks))
		for i, t := range col.Tasks {
			tasks[i] = t.clone()
		}
		c.Columns[key] = &Column{Name: col.Name, Tasks: tasks}
	}
	return c
}
