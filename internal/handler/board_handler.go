package handler

import (
	"context"
	"errors"
	"net/http"

	"taskboard/internal/board"
	"taskboard/internal/model"
	"taskboard/internal/permission"
	"taskboard/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
)

type BoardStore interface {
	Create(ctx context.Context, b *model.Board) error
	List(ctx context.Context) ([]model.Board, error)
	GetByID(ctx context.Context, id int64) (*model.Board, error)
	Snapshot(ctx context.Context, boardID int64) (*board.Snapshot, error)
}

var _ BoardStore = (*repository.BoardRepository)(nil)

type BoardHandler struct {
	boards   BoardStore
	sanitize *bluemonday.Policy
}

func NewBoardHandler(boards BoardStore) *BoardHandler {
	return &BoardHandler{boards: boards, sanitize: bluemonday.StrictPolicy()}
}

type BoardRequest struct {
	Title       string `json:"title" binding:"required,min=1,max=200"`
	Description string `json:"description"`
	AreaID      *uint  `json:"area_id"`
}

type BoardResponse struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

func toBoardResponse(b model.Board) BoardResponse {
	return BoardResponse{ID: b.ID, Title: b.Title, Description: b.Description, IsActive: b.IsActive}
}

func (h *BoardHandler) GetAll(c *gin.Context) {
	if _, ok := actor(c); !ok {
		return
	}
	boards, err := h.boards.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve boards"})
		return
	}
	out := make([]BoardResponse, 0, len(boards))
	for _, b := range boards {
		out = append(out, toBoardResponse(b))
	}
	c.JSON(http.StatusOK, out)
}

func (h *BoardHandler) Create(c *gin.Context) {
	gate, ok := actor(c)
	if !ok {
		return
	}
	if !gate.Has(permission.ManageBoards) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You don't have permission to manage boards"})
		return
	}
	var req BoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	b := &model.Board{
		Title:       h.sanitize.Sanitize(req.Title),
		Description: h.sanitize.Sanitize(req.Description),
		AreaID:      req.AreaID,
		IsActive:    true,
	}
	if err := h.boards.Create(c.Request.Context(), b); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create board"})
		return
	}
	c.JSON(http.StatusCreated, toBoardResponse(*b))
}

// Tasks godoc
// @Summary      Board snapshot
// @Description  Every task on the board grouped into the four columns.
// @Tags         Boards
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Board ID"
// @Success      200  {object}  board.Snapshot
// @Failure      404  {object}  map[string]string
// @Router       /boards/{id}/tasks [get]
func (h *BoardHandler) Tasks(c *gin.Context) {
	if _, ok := actor(c); !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	snap, err := h.boards.Snapshot(c.Request.Context(), id)
	if errors.Is(err, repository.ErrBoardNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Board not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve board"})
		return
	}
	c.JSON(http.StatusOK, snap)
}
