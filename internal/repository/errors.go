package repository

import "errors"

// Common repository errors
var (
	// ErrBoardNotFound is returned when a board is not found
	ErrBoardNotFound = errors.New("board not found")

	// ErrTaskNotFound is returned when a task is not found or was deleted
	ErrTaskNotFound = errors.New("task not found")

	ErrRoleNotFound = errors.New("role not found")
)
