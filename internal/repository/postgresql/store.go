package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"github.com/returnlab/portal/internal/db"
	"github.com/returnlab/portal/internal/repository"
)

type StoreRepo struct {
	db db.DB
}

func NewStoreRepo(db db.DB) *StoreRepo {
	return &StoreRepo{db: db}
}

func (r *StoreRepo) Create(ctx context.Context, store *repository.Store) error {
	if store.ID == uuid.Nil {
		store.ID = uuid.New()
	}
	now := time.Now().UTC()
	store.CreatedAt = now
	store.UpdatedAt = now

	_, err := r.db.Exec(ctx, `
        INSERT INTO stores (
            id, name, storefront_domain, storefront_token, is_active,
            oauth_connected, oauth_connected_at, oauth_scopes, integration_type,
            created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, store.ID, store.Name, store.StorefrontDomain, store.StorefrontToken, store.IsActive,
		store.OAuthConnected, store.OAuthConnectedAt, store.OAuthScopes, store.IntegrationType,
		store.CreatedAt, store.UpdatedAt)
	if isUniqueViolation(err) {
		return repository.ErrUniqueViolation
	}
	return err
}

func (r *StoreRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Store, error) {
	var store repository.Store
	err := r.db.Get(ctx, &store, "SELECT * FROM stores WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &store, nil
}

func (r *StoreRepo) GetByDomain(ctx context.Context, domain string) (*repository.Store, error) {
	var store repository.Store
	err := r.db.Get(ctx, &store, "SELECT * FROM stores WHERE storefront_domain = $1", domain)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &store, nil
}

func (r *StoreRepo) List(ctx context.Context) ([]*repository.Store, error) {
	var stores []*repository.Store
	err := r.db.Select(ctx, &stores, "SELECT * FROM stores ORDER BY created_at DESC")
	return stores, err
}

func (r *StoreRepo) ListActive(ctx context.Context) ([]*repository.Store, error) {
	var stores []*repository.Store
	err := r.db.Select(ctx, &stores, "SELECT * FROM stores WHERE is_active ORDER BY created_at DESC")
	return stores, err
}

func (r *StoreRepo) Update(ctx context.Context, store *repository.Store) error {
	store.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
        UPDATE stores
        SET
            name = $2,
            storefront_domain = $3,
            storefront_token = $4,
            is_active = $5,
            oauth_connected = $6,
            oauth_connected_at = $7,
            oauth_scopes = $8,
            integration_type = $9,
            updated_at = $10
        WHERE id = $1
    `, store.ID, store.Name, store.StorefrontDomain, store.StorefrontToken, store.IsActive,
		store.OAuthConnected, store.OAuthConnectedAt, store.OAuthScopes, store.IntegrationType,
		store.UpdatedAt)
	if isUniqueViolation(err) {
		return repository.ErrUniqueViolation
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

func (r *StoreRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM stores WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
