package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/returnlab/portal/internal/blob"
	"github.com/returnlab/portal/internal/orders"
	"github.com/returnlab/portal/internal/repository"
	"github.com/returnlab/portal/internal/returns"
	"github.com/returnlab/portal/internal/stores"
)

type Aggregator interface {
	Search(ctx context.Context, email string) (*orders.SearchResult, error)
}

type ReturnService interface {
	Create(ctx context.Context, payload *returns.CreatePayload) (uuid.UUID, error)
	Transition(ctx context.Context, id uuid.UUID, action, notes string) (*repository.ReturnRequest, error)
	List(ctx context.Context, filter repository.ListFilter) (*returns.ListResult, error)
	History(ctx context.Context, id uuid.UUID) ([]*repository.AdminAction, error)
	GetForCustomer(ctx context.Context, id uuid.UUID, email string) (*repository.ReturnRequest, error)
	GetForAudit(ctx context.Context, id uuid.UUID) (string, error)
}

type StoreService interface {
	List(ctx context.Context) ([]*stores.View, error)
	Create(ctx context.Context, name, domain, token string) (*stores.View, error)
	Update(ctx context.Context, id uuid.UUID, patch stores.UpdatePayload) (*stores.View, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type OAuthService interface {
	Connect(domain, clientID, clientSecret, storeName string) (string, error)
	Callback(ctx context.Context, code, shop, state string) string
}

// StoreGetter resolves the store display name for the receipt.
type StoreGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Store, error)
}

type Server struct {
	aggregator Aggregator
	returns    ReturnService
	stores     StoreService
	oauth      OAuthService
	storeNames StoreGetter
	files      *blob.FileStore
	audit      *AuditManager
	logger     *zap.Logger

	adminTokenHash string
	httpServer     *http.Server
}

func New(
	aggregator Aggregator,
	returnSvc ReturnService,
	storeSvc StoreService,
	oauthSvc OAuthService,
	storeNames StoreGetter,
	files *blob.FileStore,
	audit *AuditManager,
	adminTokenHash string,
	logger *zap.Logger,
) *Server {
	return &Server{
		aggregator:     aggregator,
		returns:        returnSvc,
		stores:         storeSvc,
		oauth:          oauthSvc,
		storeNames:     storeNames,
		files:          files,
		audit:          audit,
		adminTokenHash: adminTokenHash,
		logger:         logger,
	}
}

func (s *Server) Run(ctx context.Context, port string) error {
	s.httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.audit.Start(ctx)

	s.logger.Info("http server starting", zap.String("port", port))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	s.audit.Shutdown(ctx)
	return nil
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	// Customer-facing surface.
	api.HandleFunc("/orders/search", s.handleOrderSearch).Methods(http.MethodGet)
	api.HandleFunc("/returns", s.handleCreateReturn).Methods(http.MethodPost)
	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/returns/receipt", s.handleReceipt).Methods(http.MethodGet, http.MethodPost)

	// Browser redirect target for the OAuth dance; authenticated by the
	// signed state blob, not the admin token.
	api.HandleFunc("/shopify/callback", s.handleOAuthCallback).Methods(http.MethodGet)

	// Admin surface: shared-secret bearer gate plus the audit trail.
	api.Handle("/returns", s.admin(s.handleListReturns)).Methods(http.MethodGet)
	api.Handle("/returns/{id}/action", s.admin(s.handleReturnAction)).Methods(http.MethodPost)
	api.Handle("/returns/{id}/actions", s.admin(s.handleReturnHistory)).Methods(http.MethodGet)
	api.Handle("/stores", s.admin(s.handleListStores)).Methods(http.MethodGet)
	api.Handle("/stores", s.admin(s.handleCreateStore)).Methods(http.MethodPost)
	api.Handle("/stores/{id}", s.admin(s.handleUpdateStore)).Methods(http.MethodPut)
	api.Handle("/stores/{id}", s.admin(s.handleDeleteStore)).Methods(http.MethodDelete)
	api.Handle("/shopify/connect", s.admin(s.handleOAuthConnect)).Methods(http.MethodPost)

	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.files.Dir()))))

	return r
}

// admin chains the bearer gate and the audit middleware around one handler.
func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return s.adminAuthMiddleware(s.auditMiddleware(h))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
