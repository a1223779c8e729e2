package postgresql_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	mock_database "github.com/returnlab/portal/internal/db/mocks"
	"github.com/returnlab/portal/internal/repository"
	"github.com/returnlab/portal/internal/repository/postgresql"
)

func TestReturnRequestRepo_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewReturnRequestRepo(mockDB)

		req := &repository.ReturnRequest{
			StoreID:         uuid.New(),
			ExternalOrderID: "5551234567",
			CustomerEmail:   "jane@example.com",
			FormData:        []byte(`{"schema_version":1}`),
			Attachments:     []string{},
			Status:          repository.StatusPending,
		}

		mockDB.EXPECT().Exec(
			gomock.Any(), gomock.Any(),
			gomock.Any(),
			gomock.Eq(req.StoreID),
			gomock.Eq(req.ExternalOrderID),
			gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
			gomock.Eq(req.CustomerEmail),
			gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
			gomock.Eq(repository.StatusPending),
			gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
		).Return(pgconn.CommandTag("INSERT 0 1"), nil)

		err := repo.Create(ctx, req)
		assert.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, req.ID)
	})

	t.Run("duplicate external order id", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewReturnRequestRepo(mockDB)

		pgErr := &pgconn.PgError{Code: "23505"}
		mockDB.EXPECT().Exec(
			gomock.Any(), gomock.Any(),
			gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
			gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
			gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
			gomock.Any(), gomock.Any(), gomock.Any(),
		).Return(nil, pgErr)

		err := repo.Create(ctx, &repository.ReturnRequest{ExternalOrderID: "5551234567"})
		assert.ErrorIs(t, err, repository.ErrUniqueViolation)
	})
}

func TestReturnRequestRepo_GetByExternalOrderID(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewReturnRequestRepo(mockDB)

		mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq("nope")).
			Return(pgx.ErrNoRows)

		_, err := repo.GetByExternalOrderID(ctx, "nope")
		assert.ErrorIs(t, err, repository.ErrObjectNotFound)
	})

	t.Run("found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewReturnRequestRepo(mockDB)

		expected := &repository.ReturnRequest{
			ID:              uuid.New(),
			ExternalOrderID: "5551234567",
			Status:          repository.StatusPending,
		}

		mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq(expected.ExternalOrderID)).
			DoAndReturn(func(_ context.Context, dest *repository.ReturnRequest, _ string, _ ...interface{}) error {
				*dest = *expected
				return nil
			})

		req, err := repo.GetByExternalOrderID(ctx, expected.ExternalOrderID)
		assert.NoError(t, err)
		assert.Equal(t, expected, req)
	})
}

func TestReturnRequestRepo_List(t *testing.T) {
	ctx := context.Background()

	t.Run("no filter", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewReturnRequestRepo(mockDB)

		mockDB.EXPECT().Select(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq(50), gomock.Eq(0)).
			DoAndReturn(func(_ context.Context, _ interface{}, query string, _ ...interface{}) error {
				assert.NotContains(t, query, "WHERE")
				assert.Contains(t, query, "LIMIT $1")
				assert.Contains(t, query, "OFFSET $2")
				return nil
			})

		_, err := repo.List(ctx, repository.ListFilter{Limit: 50})
		assert.NoError(t, err)
	})

	t.Run("status and store filter", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewReturnRequestRepo(mockDB)

		storeID := uuid.New()
		mockDB.EXPECT().Select(
			gomock.Any(), gomock.Any(), gomock.Any(),
			gomock.Eq(repository.StatusPending), gomock.Eq(storeID),
			gomock.Eq(20), gomock.Eq(40),
		).DoAndReturn(func(_ context.Context, _ interface{}, query string, _ ...interface{}) error {
			assert.Contains(t, query, "rr.status = $1")
			assert.Contains(t, query, "rr.store_id = $2")
			assert.Contains(t, query, "LIMIT $3")
			assert.Contains(t, query, "OFFSET $4")
			assert.True(t, strings.Contains(query, "JOIN stores"))
			return nil
		})

		_, err := repo.List(ctx, repository.ListFilter{
			Status:  repository.StatusPending,
			StoreID: &storeID,
			Limit:   20,
			Offset:  40,
		})
		assert.NoError(t, err)
	})
}

func TestReturnRequestRepo_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("success with notes", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewReturnRequestRepo(mockDB)

		id := uuid.New()
		notes := "damage confirmed"
		now := time.Now().UTC()

		mockDB.EXPECT().Exec(
			gomock.Any(), gomock.Any(),
			gomock.Eq(id),
			gomock.Eq(repository.StatusApprovedRefund),
			gomock.Eq(&notes),
			gomock.Eq(&now),
			gomock.Any(),
		).Return(pgconn.CommandTag("UPDATE 1"), nil)

		err := repo.UpdateStatus(ctx, id, repository.StatusApprovedRefund, &notes, &now)
		assert.NoError(t, err)
	})

	t.Run("missing row", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewReturnRequestRepo(mockDB)

		mockDB.EXPECT().Exec(
			gomock.Any(), gomock.Any(),
			gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
		).Return(pgconn.CommandTag("UPDATE 0"), nil)

		err := repo.UpdateStatus(ctx, uuid.New(), repository.StatusDenied, nil, nil)
		assert.ErrorIs(t, err, repository.ErrObjectNotFound)
	})
}

func TestReturnRequestRepo_StatusesByExternalOrderIDs(t *testing.T) {
	ctx := context.Background()

	t.Run("empty input short-circuits", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewReturnRequestRepo(mockDB)

		statuses, err := repo.StatusesByExternalOrderIDs(ctx, nil)
		assert.NoError(t, err)
		assert.Nil(t, statuses)
	})

	t.Run("database error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewReturnRequestRepo(mockDB)

		expectedErr := errors.New("database error")
		mockDB.EXPECT().Select(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(expectedErr)

		_, err := repo.StatusesByExternalOrderIDs(ctx, []string{"1", "2"})
		assert.Equal(t, expectedErr, err)
	})
}

func TestReturnRequestRepo_CountByStatus(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	repo := postgresql.NewReturnRequestRepo(mockDB)

	expected := []*repository.StatusCount{
		{Status: repository.StatusPending, Count: 3},
		{Status: repository.StatusDenied, Count: 1},
	}

	mockDB.EXPECT().Select(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, dest *[]*repository.StatusCount, _ string, _ ...interface{}) error {
			*dest = expected
			return nil
		})

	counts, err := repo.CountByStatus(ctx)
	assert.NoError(t, err)
	assert.Equal(t, expected, counts)
}
