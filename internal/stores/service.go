// Package stores is the registry of connected storefronts: admin CRUD plus
// the upsert path the OAuth callback uses.
package stores

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/returnlab/portal/internal/apperr"
	"github.com/returnlab/portal/internal/repository"
	"github.com/returnlab/portal/internal/shopify"
)

type StoreRepo interface {
	Create(ctx context.Context, store *repository.Store) error
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Store, error)
	GetByDomain(ctx context.Context, domain string) (*repository.Store, error)
	List(ctx context.Context) ([]*repository.Store, error)
	Update(ctx context.Context, store *repository.Store) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ReferenceCounter interface {
	CountByStore(ctx context.Context, storeID uuid.UUID) (int, error)
}

type CredentialChecker interface {
	GetShop(ctx context.Context, domain, token string) (*shopify.Shop, error)
}

type Service struct {
	repo    StoreRepo
	refs    ReferenceCounter
	checker CredentialChecker
	logger  *zap.Logger
}

func NewService(repo StoreRepo, refs ReferenceCounter, checker CredentialChecker, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		refs:    refs,
		checker: checker,
		logger:  logger,
	}
}

// View is the admin-facing store shape. Tokens never leave the service.
type View struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	StorefrontDomain string    `json:"storefront_domain"`
	IsActive         bool      `json:"is_active"`
	OAuthConnected   bool      `json:"oauth_connected"`
	CreatedAt        time.Time `json:"created_at"`
}

func toView(s *repository.Store) *View {
	return &View{
		ID:               s.ID,
		Name:             s.Name,
		StorefrontDomain: s.StorefrontDomain,
		IsActive:         s.IsActive,
		OAuthConnected:   s.OAuthConnected,
		CreatedAt:        s.CreatedAt,
	}
}

func (s *Service) List(ctx context.Context) ([]*View, error) {
	stores, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.Upstream("list stores", err)
	}
	views := make([]*View, 0, len(stores))
	for _, store := range stores {
		views = append(views, toView(store))
	}
	return views, nil
}

// Create registers a manually entered storefront. Before anything is
// persisted the credentials are checked live against the storefront API, so a
// broken integration cannot be saved silently.
func (s *Service) Create(ctx context.Context, name, domain, token string) (*View, error) {
	if name == "" || domain == "" || token == "" {
		return nil, apperr.Validation("missing required fields: name, storefront_domain, storefront_token")
	}

	normalized := shopify.NormalizeDomain(domain)
	if normalized == "" {
		return nil, apperr.Validation("invalid storefront domain")
	}

	if _, err := s.repo.GetByDomain(ctx, normalized); err == nil {
		return nil, apperr.Conflict("store already exists", "")
	} else if !errors.Is(err, repository.ErrObjectNotFound) {
		return nil, apperr.Upstream("check existing store", err)
	}

	if _, err := s.checker.GetShop(ctx, normalized, token); err != nil {
		s.logger.Warn("credential check failed", zap.String("domain", normalized), zap.Error(err))
		return nil, apperr.Validation("invalid storefront credentials")
	}

	store := &repository.Store{
		Name:             name,
		StorefrontDomain: normalized,
		StorefrontToken:  token,
		IsActive:         true,
	}
	if err := s.repo.Create(ctx, store); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, apperr.Conflict("store already exists", "")
		}
		return nil, apperr.Upstream("create store", err)
	}

	s.logger.Info("store registered", zap.String("domain", normalized))
	return toView(store), nil
}

// UpdatePayload is a partial update; nil fields keep their current value.
type UpdatePayload struct {
	Name     *string `json:"name"`
	Domain   *string `json:"storefront_domain"`
	Token    *string `json:"storefront_token"`
	IsActive *bool   `json:"is_active"`
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, patch UpdatePayload) (*View, error) {
	store, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, apperr.NotFound("store")
		}
		return nil, apperr.Upstream("get store", err)
	}

	if patch.Name != nil {
		store.Name = *patch.Name
	}
	if patch.Domain != nil {
		normalized := shopify.NormalizeDomain(*patch.Domain)
		if normalized == "" {
			return nil, apperr.Validation("invalid storefront domain")
		}
		store.StorefrontDomain = normalized
	}
	if patch.Token != nil {
		store.StorefrontToken = *patch.Token
	}
	if patch.IsActive != nil {
		store.IsActive = *patch.IsActive
	}

	if err := s.repo.Update(ctx, store); err != nil {
		switch {
		case errors.Is(err, repository.ErrObjectNotFound):
			return nil, apperr.NotFound("store")
		case errors.Is(err, repository.ErrUniqueViolation):
			return nil, apperr.Conflict("another store already uses this domain", "")
		}
		return nil, apperr.Upstream("update store", err)
	}
	return toView(store), nil
}

// Delete removes a store, but never one that return requests still reference;
// those must be soft-disabled via is_active instead.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	count, err := s.refs.CountByStore(ctx, id)
	if err != nil {
		return apperr.Upstream("count store references", err)
	}
	if count > 0 {
		return apperr.Conflict("store has return requests; deactivate it instead of deleting", "")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return apperr.NotFound("store")
		}
		return apperr.Upstream("delete store", err)
	}
	return nil
}

// ConnectedStore is what the OAuth callback upserts after a successful token
// exchange.
type ConnectedStore struct {
	Name   string
	Domain string
	Token  string
	Scopes string
}

// UpsertConnected creates or refreshes a store keyed by its domain.
func (s *Service) UpsertConnected(ctx context.Context, conn ConnectedStore) error {
	now := time.Now().UTC()
	integration := "custom_app"

	existing, err := s.repo.GetByDomain(ctx, conn.Domain)
	switch {
	case err == nil:
		existing.Name = conn.Name
		existing.StorefrontToken = conn.Token
		existing.IsActive = true
		existing.OAuthConnected = true
		existing.OAuthConnectedAt = &now
		existing.OAuthScopes = &conn.Scopes
		existing.IntegrationType = &integration
		if err := s.repo.Update(ctx, existing); err != nil {
			return apperr.Upstream("update connected store", err)
		}
		return nil
	case errors.Is(err, repository.ErrObjectNotFound):
		store := &repository.Store{
			Name:             conn.Name,
			StorefrontDomain: conn.Domain,
			StorefrontToken:  conn.Token,
			IsActive:         true,
			OAuthConnected:   true,
			OAuthConnectedAt: &now,
			OAuthScopes:      &conn.Scopes,
			IntegrationType:  &integration,
		}
		if err := s.repo.Create(ctx, store); err != nil {
			return apperr.Upstream("create connected store", err)
		}
		return nil
	default:
		return apperr.Upstream("get store by domain", err)
	}
}
