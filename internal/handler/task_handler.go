package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"taskboard/internal/board"
	"taskboard/internal/model"
	"taskboard/internal/permission"
	"taskboard/internal/repository"
	"taskboard/internal/wire"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"
)

type TaskStore interface {
	Create(ctx context.Context, task *model.Task, assignees []uuid.UUID) error
	GetByID(ctx context.Context, id int64) (*model.Task, error)
	Update(ctx context.Context, task *model.Task, assignees []uuid.UUID) error
	UpdateStatus(ctx context.Context, id int64, statusID int) error
	Delete(ctx context.Context, id int64) error
}

var _ TaskStore = (*repository.TaskRepository)(nil)

type TaskHandler struct {
	tasks     TaskStore
	boards    BoardStore
	announcer Announcer
	sanitize  *bluemonday.Policy
	log       *logrus.Entry
}

func NewTaskHandler(tasks TaskStore, boards BoardStore, announcer Announcer, log *logrus.Entry) *TaskHandler {
	return &TaskHandler{
		tasks:     tasks,
		boards:    boards,
		announcer: announcer,
		sanitize:  bluemonday.StrictPolicy(),
		log:       log,
	}
}

// TaskRequest is the body for creating or editing a task.
type TaskRequest struct {
	Title       string      `json:"title" binding:"required,min=1,max=200"`
	Description string      `json:"description"`
	Priority    string      `json:"priority" binding:"omitempty,priority"`
	StartDate   *time.Time  `json:"startDate"`
	DueDate     *time.Time  `json:"dueDate"`
	UserIDs     []uuid.UUID `json:"userIds"`
}

// StatusRequest moves a task. Either field may be used; StatusID wins.
type StatusRequest struct {
	StatusID int    `json:"status_id" binding:"omitempty,min=1,max=4"`
	Status   string `json:"status" binding:"omitempty,columnkey"`
}

func (r StatusRequest) target() (board.ColumnKey, bool) {
	if r.StatusID != 0 {
		return board.KeyForStatus(r.StatusID)
	}
	if r.Status != "" {
		return board.ColumnKey(r.Status), true
	}
	return "", false
}

func (h *TaskHandler) Create(c *gin.Context) {
	gate, ok := actor(c)
	if !ok {
		return
	}
	boardID, ok := idParam(c, "id")
	if !ok {
		return
	}
	if !gate.Has(permission.CreateTask) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You don't have permission to create tasks"})
		return
	}

	var req TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.StartDate != nil && req.DueDate != nil && req.DueDate.Before(*req.StartDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Due date must not be before start date"})
		return
	}

	ctx := c.Request.Context()
	b, err := h.boards.GetByID(ctx, boardID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve board"})
		return
	}
	if b == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Board not found"})
		return
	}

	task := &model.Task{
		BoardID:     boardID,
		StatusID:    board.Todo.StatusID(),
		Title:       h.sanitize.Sanitize(req.Title),
		Description: h.sanitize.Sanitize(req.Description),
		Priority:    priorityOrDefault(req.Priority),
		StartDate:   req.StartDate,
		DueDate:     req.DueDate,
		CreatedBy:   gate.UserID,
	}
	if err := h.tasks.Create(ctx, task, req.UserIDs); err != nil {
		h.log.WithError(err).Error("task create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task"})
		return
	}
	h.announcer.BoardChanged(ctx, boardID)
	h.announce(ctx, wire.EventTaskCreated, task, req.UserIDs)
	c.JSON(http.StatusCreated, gin.H{"id": task.ID, "board_id": boardID})
}

func (h *TaskHandler) Update(c *gin.Context) {
	gate, ok := actor(c)
	if !ok {
		return
	}
	task, ok := h.load(c)
	if !ok {
		return
	}
	if !gate.CanEditTask(assigneeIDs(task)) {
		c.JSON(http.StatusForbidden, gin.H{"error": permission.Deny(permission.ActionEdit).Message()})
		return
	}

	var req TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	previous := assigneeIDs(task)
	task.Title = h.sanitize.Sanitize(req.Title)
	task.Description = h.sanitize.Sanitize(req.Description)
	task.Priority = priorityOrDefault(req.Priority)
	task.StartDate = req.StartDate
	task.DueDate = req.DueDate

	ctx := c.Request.Context()
	if err := h.tasks.Update(ctx, task, req.UserIDs); err != nil {
		h.fail(c, err, "Failed to update task")
		return
	}
	h.announcer.BoardChanged(ctx, task.BoardID)
	h.announce(ctx, wire.EventTaskUpdated, task, previous, req.UserIDs)
	c.JSON(http.StatusOK, gin.H{"message": "Task updated"})
}

func (h *TaskHandler) Delete(c *gin.Context) {
	gate, ok := actor(c)
	if !ok {
		return
	}
	task, ok := h.load(c)
	if !ok {
		return
	}
	if !gate.CanDeleteTask(assigneeIDs(task)) {
		c.JSON(http.StatusForbidden, gin.H{"error": permission.Deny(permission.ActionDelete).Message()})
		return
	}

	ctx := c.Request.Context()
	if err := h.tasks.Delete(ctx, task.ID); err != nil {
		h.fail(c, err, "Failed to delete task")
		return
	}
	h.announcer.BoardChanged(ctx, task.BoardID)
	h.announce(ctx, wire.EventTaskDeleted, task, assigneeIDs(task))
	c.Status(http.StatusNoContent)
}

// UpdateStatus godoc
// @Summary      Move a task to another column
// @Description  Re-checks move permission and the completed-column role rule.
// @Tags         Tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int            true  "Task ID"
// @Param        body  body      StatusRequest  true  "Target column"
// @Success      200   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /tasks/{id}/status [patch]
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	gate, ok := actor(c)
	if !ok {
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}
	to, ok := req.target()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}
	task, ok := h.load(c)
	if !ok {
		return
	}

	var denial *permission.Denial
	if err := gate.CheckTransition(assigneeIDs(task), to); errors.As(err, &denial) {
		h.log.WithFields(logrus.Fields{
			"task_id": task.ID,
			"user_id": gate.UserID,
			"action":  denial.Action,
		}).Info("status change denied")
		c.JSON(http.StatusForbidden, gin.H{"error": denial.Message()})
		return
	}

	ctx := c.Request.Context()
	if task.StatusID != to.StatusID() {
		if err := h.tasks.UpdateStatus(ctx, task.ID, to.StatusID()); err != nil {
			h.fail(c, err, "Failed to update task status")
			return
		}
		h.announcer.BoardChanged(ctx, task.BoardID)
		h.announce(ctx, wire.EventTaskUpdated, task, assigneeIDs(task))
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task status updated", "status": to})
}

// announce tells every listed user that task changed. Ids may repeat
// across the lists.
func (h *TaskHandler) announce(ctx context.Context, event string, task *model.Task, users ...[]uuid.UUID) {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, list := range users {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return
	}
	h.announcer.TaskChanged(ctx, wire.TaskChange{
		Event:   event,
		TaskID:  task.ID,
		BoardID: task.BoardID,
		Title:   task.Title,
		Users:   ids,
	})
}

func (h *TaskHandler) load(c *gin.Context) (*model.Task, bool) {
	id, ok := idParam(c, "id")
	if !ok {
		return nil, false
	}
	task, err := h.tasks.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "Failed to retrieve task")
		return nil, false
	}
	return task, true
}

func (h *TaskHandler) fail(c *gin.Context, err error, msg string) {
	if errors.Is(err, repository.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	h.log.WithError(err).Error(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func assigneeIDs(t *model.Task) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(t.Assignees))
	for _, a := range t.Assignees {
		ids = append(ids, a.UserID)
	}
	return ids
}

func priorityOrDefault(p string) string {
	if p == "" {
		return string(board.Medium)
	}
	return p
}
