package repository

import (
	"context"
	"errors"

	"taskboard/internal/board"
	"taskboard/internal/model"

	"gorm.io/gorm"
)

type BoardRepository struct {
	db *gorm.DB
}

func NewBoardRepository(db *gorm.DB) *BoardRepository {
	return &BoardRepository{db: db}
}

func (r *BoardRepository) Create(ctx context.Context, b *model.Board) error {
	return r.db.WithContext(ctx).Omit("Area").Create(b).Error
}

func (r *BoardRepository) List(ctx context.Context) ([]model.Board, error) {
	var boards []model.Board
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&boards).Error
	return boards, err
}

func (r *BoardRepository) GetByID(ctx context.Context, id int64) (*model.Board, error) {
	var b model.Board
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // Return nil, nil to indicate that the board was not found
		}
		return nil, err
	}
	return &b, nil
}

// Snapshot loads the full state of a board: every live task, grouped by
// column and ordered by id, with its assignees.
func (r *BoardRepository) Snapshot(ctx context.Context, boardID int64) (*board.Snapshot, error) {
	b, err := r.GetByID(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBoardNotFound
	}

	var tasks []model.Task
	err = r.db.WithContext(ctx).
		Preload("Assignees.User").
		Where("board_id = ?", boardID).
		Order("id").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}

	snap := board.NewSnapshot(b.ID, b.Title)
	for _, t := range tasks {
		key, ok := board.KeyForStatus(t.StatusID)
		if !ok {
			continue
		}
		col := snap.Column(key)
		col.Tasks = append(col.Tasks, toBoardTask(t, key))
	}
	return snap, nil
}

func toBoardTask(t model.Task, key board.ColumnKey) board.Task {
	out := board.Task{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    board.Priority(t.Priority),
		StartDate:   t.StartDate,
		DueDate:     t.DueDate,
		Status:      key,
	}
	for _, a := range t.Assignees {
		out.AssignedUsers = append(out.AssignedUsers, board.UserRef{
			ID:        a.UserID,
			FirstName: a.User.FirstName,
			LastName:  a.User.LastName,
		})
	}
	return out
}
