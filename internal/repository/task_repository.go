package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"taskboard/internal/board"
	"taskboard/internal/model"
)

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create adds a new task together with its assignees
func (r *TaskRepository) Create(ctx context.Context, task *model.Task, assignees []uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Board", "Status", "Assignees").Create(task).Error; err != nil {
			return err
		}
		return replaceAssignees(tx, task.ID, assignees)
	})
}

// GetByID retrieves a live task with its assignees
func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*model.Task, error) {
	var task model.Task
	result := r.db.WithContext(ctx).Preload("Assignees.User").First(&task, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, result.Error
	}
	return &task, nil
}

// Update saves the editable fields and, when assignees is non-nil, replaces
// the assignee set
func (r *TaskRepository) Update(ctx context.Context, task *model.Task, assignees []uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Task{}).Where("id = ?", task.ID).Updates(map[string]any{
			"title":       task.Title,
			"description": task.Description,
			"priority":    task.Priority,
			"start_date":  task.StartDate,
			"due_date":    task.DueDate,
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrTaskNotFound
		}
		if assignees == nil {
			return nil
		}
		return replaceAssignees(tx, task.ID, assignees)
	})
}

// UpdateStatus moves a task to another column
func (r *TaskRepository) UpdateStatus(ctx context.Context, id int64, statusID int) error {
	result := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ?", id).
		Update("status_id", statusID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// AssignedTo lists the live tasks assigned to userID across every board,
// ordered by id
func (r *TaskRepository) AssignedTo(ctx context.Context, userID uuid.UUID) ([]board.AssignedTask, error) {
	assigned := r.db.Model(&model.TaskAssignee{}).Select("task_id").Where("user_id = ?", userID)

	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Preload("Board").
		Preload("Assignees.User").
		Where("id IN (?)", assigned).
		Order("id").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}

	out := make([]board.AssignedTask, 0, len(tasks))
	for _, t := range tasks {
		key, ok := board.KeyForStatus(t.StatusID)
		if !ok {
			continue
		}
		out = append(out, board.AssignedTask{
			Task:      toBoardTask(t, key),
			BoardID:   t.BoardID,
			BoardName: t.Board.Title,
		})
	}
	return out, nil
}

// Delete soft-deletes a task; it disappears from snapshots
func (r *TaskRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&model.Task{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func replaceAssignees(tx *gorm.DB, taskID int64, assignees []uuid.UUID) error {
	if err := tx.Where("task_id = ?", taskID).Delete(&model.TaskAssignee{}).Error; err != nil {
		return err
	}
	if len(assignees) == 0 {
		return nil
	}
	rows := make([]model.TaskAssignee, 0, len(assignees))
	seen := make(map[uuid.UUID]bool, len(assignees))
	for _, id := range assignees {
		if seen[id] {
			continue
		}
		seen[id] = true
		rows = append(rows, model.TaskAssignee{TaskID: taskID, UserID: id})
	}
	return tx.Omit("User").Create(&rows).Error
}
