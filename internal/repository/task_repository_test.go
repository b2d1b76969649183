package repository_test

import (
	"context"
	"testing"

	"taskboard/internal/board"
	"taskboard/internal/model"
	"taskboard/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRepository_UpdateStatus(t *testing.T) {
	// Arrange
	gormDB, mock := setupMockDB(t)
	repo := repository.NewTaskRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "tasks" SET "status_id"=.*,"updated_at"=.* WHERE id = .* AND "tasks"."deleted_at" IS NULL`).
		WithArgs(3, sqlmock.AnyArg(), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Act
	err := repo.UpdateStatus(context.Background(), 42, 3)

	// Assert
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_UpdateStatus_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewTaskRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "tasks" SET "status_id"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.UpdateStatus(context.Background(), 99, 2)

	assert.ErrorIs(t, err, repository.ErrTaskNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_Delete_IsSoft(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewTaskRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "tasks" SET "deleted_at"=.* WHERE id = .* AND "tasks"."deleted_at" IS NULL`).
		WithArgs(sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), 5)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_GetByID_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewTaskRepository(gormDB)

	mock.ExpectQuery(`SELECT .* FROM "tasks" WHERE id = .* AND "tasks"."deleted_at" IS NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	task, err := repo.GetByID(context.Background(), 1)

	assert.ErrorIs(t, err, repository.ErrTaskNotFound)
	assert.Nil(t, task)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_Create_WithAssignees(t *testing.T) {
	// Arrange
	gormDB, mock := setupMockDB(t)
	repo := repository.NewTaskRepository(gormDB)
	a, b := uuid.New(), uuid.New()
	task := &model.Task{BoardID: 7, StatusID: 1, Title: "New", Priority: "MEDIUM", CreatedBy: a}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "tasks"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectExec(`DELETE FROM "task_assignees" WHERE task_id = `).
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO "task_assignees"`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	// Act
	err := repo.Create(context.Background(), task, []uuid.UUID{a, b, a})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(11), task.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_AssignedTo(t *testing.T) {
	// Arrange
	gormDB, mock := setupMockDB(t)
	mock.MatchExpectationsInOrder(false)
	repo := repository.NewTaskRepository(gormDB)
	user := uuid.New()

	mock.ExpectQuery(`SELECT .* FROM "tasks" WHERE id IN \(SELECT .*task_id.* FROM "task_assignees" WHERE user_id = .*\) AND "tasks"."deleted_at" IS NULL ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "board_id", "status_id", "title", "priority"}).
			AddRow(4, 7, 2, "Ship it", "HIGH").
			AddRow(9, 8, 4, "Done already", "LOW"))
	mock.ExpectQuery(`SELECT .* FROM "boards" WHERE "boards"."id" IN`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(7, "Platform").AddRow(8, "Mobile"))
	mock.ExpectQuery(`SELECT .* FROM "task_assignees" WHERE "task_assignees"."task_id" IN`).
		WillReturnRows(sqlmock.NewRows([]string{"task_id", "user_id"}).
			AddRow(4, user.String()).
			AddRow(9, user.String()))
	mock.ExpectQuery(`SELECT .* FROM "users" WHERE "users"."id" = `).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name"}).AddRow(user.String(), "Ada"))

	// Act
	tasks, err := repo.AssignedTo(context.Background(), user)

	// Assert
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, int64(4), tasks[0].ID)
	assert.Equal(t, board.InProgress, tasks[0].Status)
	assert.Equal(t, "Platform", tasks[0].BoardName)
	assert.Equal(t, int64(8), tasks[1].BoardID)
	assert.Equal(t, board.Completed, tasks[1].Status)
	assert.Equal(t, []uuid.UUID{user}, tasks[1].AssigneeIDs())
	assert.NoError(t, mock.ExpectationsWereMet())
}
