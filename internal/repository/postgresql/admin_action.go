package postgresql

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/returnlab/portal/internal/db"
	"github.com/returnlab/portal/internal/repository"
)

type AdminActionRepo struct {
	db db.DB
}

func NewAdminActionRepo(db db.DB) *AdminActionRepo {
	return &AdminActionRepo{db: db}
}

// Create appends one audit record. There is deliberately no update or delete.
func (r *AdminActionRepo) Create(ctx context.Context, action *repository.AdminAction) error {
	action.CreatedAt = time.Now().UTC()
	_, err := r.db.Exec(ctx, `
        INSERT INTO admin_actions (return_request_id, action, notes, created_at)
        VALUES ($1, $2, $3, $4)
    `, action.ReturnRequestID, action.Action, action.Notes, action.CreatedAt)
	return err
}

func (r *AdminActionRepo) GetByReturnRequestID(ctx context.Context, returnRequestID uuid.UUID) ([]*repository.AdminAction, error) {
	var actions []*repository.AdminAction
	err := r.db.Select(ctx, &actions, `
        SELECT * FROM admin_actions
        WHERE return_request_id = $1
        ORDER BY created_at ASC
    `, returnRequestID)
	return actions, err
}
