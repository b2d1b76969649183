package handler

import (
	"context"
	"net/http"
	"strconv"

	"taskboard/internal/board"
	"taskboard/internal/middleware"
	"taskboard/internal/permission"
	"taskboard/internal/wire"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Announcer is told about every board whose contents changed, and about
// each task mutation so assignees' feeds can follow.
type Announcer interface {
	BoardChanged(ctx context.Context, boardID int64)
	TaskChanged(ctx context.Context, change wire.TaskChange)
}

// RegisterValidators adds the `columnkey` and `priority` binding tags.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("columnkey", func(fl validator.FieldLevel) bool {
		return board.ColumnKey(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		return board.Priority(fl.Field().String()).Valid()
	})
}

// actor returns the authenticated user's permission gate. It writes a 401
// and returns false when the middleware did not run.
func actor(c *gin.Context) (permission.Gate, bool) {
	rawID, exists := c.Get(middleware.UserIDKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return permission.Gate{}, false
	}
	userID, ok := rawID.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user ID format"})
		return permission.Gate{}, false
	}
	role, _ := c.Get(middleware.RoleKey)
	r, _ := role.(permission.Role)
	return permission.NewGate(r, userID), true
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}
