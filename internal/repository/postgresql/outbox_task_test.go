package postgresql_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	mock_database "github.com/returnlab/portal/internal/db/mocks"
	"github.com/returnlab/portal/internal/repository"
	"github.com/returnlab/portal/internal/repository/postgresql"
)

func TestOutboxTaskRepo_Create(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	repo := postgresql.NewOutboxTaskRepo()

	task := &repository.OutboxTask{
		Topic:   "audit_logs",
		Payload: []byte(`{"handler":"handleReturnAction"}`),
	}

	mockDB.EXPECT().Exec(
		gomock.Any(), gomock.Any(),
		gomock.Any(),
		gomock.Eq(repository.TaskStatusCreated),
		gomock.Eq(task.Payload),
		gomock.Eq(task.Topic),
		gomock.Any(), gomock.Any(),
	).Return(pgconn.CommandTag("INSERT 0 1"), nil)

	err := repo.Create(ctx, mockDB, task)
	assert.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, task.ID)
}

func TestOutboxTaskRepo_GetProcessableTasks(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	repo := postgresql.NewOutboxTaskRepo()

	expected := []*repository.OutboxTask{
		{ID: uuid.New(), Status: repository.TaskStatusCreated, Topic: "audit_logs"},
	}

	mockDB.EXPECT().Select(
		gomock.Any(), gomock.Any(), gomock.Any(),
		gomock.Eq(repository.TaskStatusCreated),
		gomock.Eq(repository.TaskStatusFailed),
		gomock.Any(),
		gomock.Eq(10),
	).DoAndReturn(func(_ context.Context, dest *[]*repository.OutboxTask, query string, _ ...interface{}) error {
		assert.Contains(t, query, "FOR UPDATE SKIP LOCKED")
		*dest = expected
		return nil
	})

	tasks, err := repo.GetProcessableTasks(ctx, mockDB, 10)
	assert.NoError(t, err)
	assert.Equal(t, expected, tasks)
}

func TestOutboxTaskRepo_UpdateTaskStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("done with completion time", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewOutboxTaskRepo()

		id := uuid.New()
		completed := time.Now().UTC()

		mockDB.EXPECT().Exec(
			gomock.Any(), gomock.Any(),
			gomock.Eq(id),
			gomock.Eq(repository.TaskStatusDone),
			gomock.Eq(0),
			gomock.Nil(),
			gomock.Eq(&completed),
			gomock.Any(),
		).Return(pgconn.CommandTag("UPDATE 1"), nil)

		err := repo.UpdateTaskStatus(ctx, mockDB, id, repository.TaskStatusDone, 0, nil, &completed)
		assert.NoError(t, err)
	})

	t.Run("missing task", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewOutboxTaskRepo()

		mockDB.EXPECT().Exec(
			gomock.Any(), gomock.Any(),
			gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
		).Return(pgconn.CommandTag("UPDATE 0"), nil)

		err := repo.UpdateTaskStatus(ctx, mockDB, uuid.New(), repository.TaskStatusFailed, 1, nil, nil)
		assert.ErrorIs(t, err, repository.ErrObjectNotFound)
	})
}
