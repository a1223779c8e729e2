package postgresql

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/returnlab/portal/internal/db"
	"github.com/returnlab/portal/internal/repository"
)

type ReturnRequestRepo struct {
	db db.DB
}

func NewReturnRequestRepo(db db.DB) *ReturnRequestRepo {
	return &ReturnRequestRepo{db: db}
}

func (r *ReturnRequestRepo) Create(ctx context.Context, req *repository.ReturnRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := r.db.Exec(ctx, `
        INSERT INTO return_requests (
            id, store_id, external_order_id, order_number, order_date,
            order_total, order_currency, customer_email, customer_name,
            customer_phone, customer_document, form_data, attachments,
            status, admin_notes, time_spent_seconds, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
    `, req.ID, req.StoreID, req.ExternalOrderID, req.OrderNumber, req.OrderDate,
		req.OrderTotal, req.OrderCurrency, req.CustomerEmail, req.CustomerName,
		req.CustomerPhone, req.CustomerDocument, req.FormData, req.Attachments,
		req.Status, req.AdminNotes, req.TimeSpentSeconds, req.CreatedAt, req.UpdatedAt)
	if isUniqueViolation(err) {
		return repository.ErrUniqueViolation
	}
	return err
}

func (r *ReturnRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.ReturnRequest, error) {
	var req repository.ReturnRequest
	err := r.db.Get(ctx, &req, "SELECT * FROM return_requests WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *ReturnRequestRepo) GetByExternalOrderID(ctx context.Context, externalOrderID string) (*repository.ReturnRequest, error) {
	var req repository.ReturnRequest
	err := r.db.Get(ctx, &req, "SELECT * FROM return_requests WHERE external_order_id = $1", externalOrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &req, nil
}

// GetByIDAndEmail serves the receipt path: the stored customer email acts as a
// lightweight possession check.
func (r *ReturnRequestRepo) GetByIDAndEmail(ctx context.Context, id uuid.UUID, email string) (*repository.ReturnRequest, error) {
	var req repository.ReturnRequest
	err := r.db.Get(ctx, &req,
		"SELECT * FROM return_requests WHERE id = $1 AND lower(customer_email) = lower($2)", id, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *ReturnRequestRepo) List(ctx context.Context, filter repository.ListFilter) ([]*repository.ReturnRequestWithStore, error) {
	query := `
        SELECT rr.*, s.name AS store_name, s.storefront_domain AS store_domain
        FROM return_requests rr
        JOIN stores s ON s.id = rr.store_id
    `
	var args []interface{}

	where := ""
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = " WHERE rr.status = $1"
	}
	if filter.StoreID != nil {
		args = append(args, *filter.StoreID)
		if where == "" {
			where = " WHERE rr.store_id = $1"
		} else {
			where += " AND rr.store_id = $2"
		}
	}
	query += where + " ORDER BY rr.created_at DESC"

	args = append(args, filter.Limit)
	query += " LIMIT $" + strconv.Itoa(len(args))
	args = append(args, filter.Offset)
	query += " OFFSET $" + strconv.Itoa(len(args))

	var rows []*repository.ReturnRequestWithStore
	err := r.db.Select(ctx, &rows, query, args...)
	return rows, err
}

// CountByStatus computes the global dashboard breakdown over all requests,
// independent of any list filter.
func (r *ReturnRequestRepo) CountByStatus(ctx context.Context) ([]*repository.StatusCount, error) {
	var counts []*repository.StatusCount
	err := r.db.Select(ctx, &counts, `
        SELECT status, COUNT(*) AS count FROM return_requests GROUP BY status
    `)
	return counts, err
}

// StatusesByExternalOrderIDs is the read-only join backing the order search
// annotation.
func (r *ReturnRequestRepo) StatusesByExternalOrderIDs(ctx context.Context, externalOrderIDs []string) ([]*repository.OrderReturnStatus, error) {
	if len(externalOrderIDs) == 0 {
		return nil, nil
	}
	var statuses []*repository.OrderReturnStatus
	err := r.db.Select(ctx, &statuses, `
        SELECT external_order_id, status FROM return_requests
        WHERE external_order_id = ANY($1)
    `, externalOrderIDs)
	return statuses, err
}

// UpdateStatus applies one admin transition. A nil notes pointer preserves the
// prior admin_notes; a nil resolutionDate leaves resolution_date untouched.
func (r *ReturnRequestRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string, notes *string, resolutionDate *time.Time) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE return_requests
        SET
            status = $2,
            admin_notes = COALESCE($3, admin_notes),
            resolution_date = COALESCE($4, resolution_date),
            updated_at = $5
        WHERE id = $1
    `, id, status, notes, resolutionDate, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

func (r *ReturnRequestRepo) CountByStore(ctx context.Context, storeID uuid.UUID) (int, error) {
	var count int
	err := r.db.ExecQueryRow(ctx,
		"SELECT COUNT(*) FROM return_requests WHERE store_id = $1", storeID).Scan(&count)
	return count, err
}
