// Package returns owns the return request lifecycle: creation with the
// one-request-per-order constraint, admin status transitions, and the
// append-only admin action audit trail.
package returns

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/returnlab/portal/internal/apperr"
	"github.com/returnlab/portal/internal/metrics"
	"github.com/returnlab/portal/internal/repository"
	"github.com/returnlab/portal/internal/wizard"
)

type RequestRepo interface {
	Create(ctx context.Context, req *repository.ReturnRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*repository.ReturnRequest, error)
	GetByExternalOrderID(ctx context.Context, externalOrderID string) (*repository.ReturnRequest, error)
	GetByIDAndEmail(ctx context.Context, id uuid.UUID, email string) (*repository.ReturnRequest, error)
	List(ctx context.Context, filter repository.ListFilter) ([]*repository.ReturnRequestWithStore, error)
	CountByStatus(ctx context.Context) ([]*repository.StatusCount, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, notes *string, resolutionDate *time.Time) error
}

type ActionRepo interface {
	Create(ctx context.Context, action *repository.AdminAction) error
	GetByReturnRequestID(ctx context.Context, returnRequestID uuid.UUID) ([]*repository.AdminAction, error)
}

type Service struct {
	requests RequestRepo
	actions  ActionRepo
	logger   *zap.Logger
}

func NewService(requests RequestRepo, actions ActionRepo, logger *zap.Logger) *Service {
	return &Service{
		requests: requests,
		actions:  actions,
		logger:   logger,
	}
}

// CreatePayload is the submission produced by the client wizard. Attachments
// must already be URLs from the upload relay; nothing is uploaded here.
type CreatePayload struct {
	StoreID          string           `json:"store_id"`
	ExternalOrderID  string           `json:"external_order_id"`
	OrderNumber      string           `json:"order_number"`
	OrderDate        string           `json:"order_date"`
	OrderTotal       string           `json:"order_total"`
	OrderCurrency    string           `json:"order_currency"`
	CustomerEmail    string           `json:"customer_email"`
	CustomerName     string           `json:"customer_name"`
	CustomerPhone    string           `json:"customer_phone"`
	CustomerDocument string           `json:"customer_document"`
	FormData         *wizard.FormData `json:"form_data"`
	Attachments      []string         `json:"attachments"`
	TimeSpentSeconds int              `json:"time_spent_seconds"`
}

// Create persists a new return request in status pending and returns its id.
// At most one request may exist per external order id; the unique index on
// external_order_id closes the check-then-insert race, and the pre-read only
// supplies the existing status for the conflict response.
func (s *Service) Create(ctx context.Context, payload *CreatePayload) (uuid.UUID, error) {
	if payload.StoreID == "" || payload.ExternalOrderID == "" || payload.CustomerEmail == "" || payload.FormData == nil {
		return uuid.Nil, apperr.Validation("missing required fields: store_id, external_order_id, customer_email, form_data")
	}

	storeID, err := uuid.Parse(payload.StoreID)
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid store_id")
	}

	if violations := wizard.Validate(payload.FormData); len(violations) > 0 {
		return uuid.Nil, apperr.Validation("invalid form data: %s", violations[0].Message)
	}

	if existing, err := s.requests.GetByExternalOrderID(ctx, payload.ExternalOrderID); err == nil {
		return uuid.Nil, apperr.Conflict("return request already exists for this order", existing.Status)
	} else if !errors.Is(err, repository.ErrObjectNotFound) {
		return uuid.Nil, apperr.Upstream("check existing return request", err)
	}

	if payload.FormData.SchemaVersion == 0 {
		payload.FormData.SchemaVersion = wizard.CurrentSchemaVersion
	}
	formData, err := json.Marshal(payload.FormData)
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid form data")
	}

	req := &repository.ReturnRequest{
		ID:               uuid.New(),
		StoreID:          storeID,
		ExternalOrderID:  payload.ExternalOrderID,
		OrderNumber:      payload.OrderNumber,
		OrderTotal:       payload.OrderTotal,
		OrderCurrency:    payload.OrderCurrency,
		CustomerEmail:    payload.CustomerEmail,
		CustomerName:     payload.CustomerName,
		CustomerPhone:    payload.CustomerPhone,
		CustomerDocument: payload.CustomerDocument,
		FormData:         formData,
		Attachments:      payload.Attachments,
		Status:           repository.StatusPending,
		TimeSpentSeconds: payload.TimeSpentSeconds,
	}
	if req.Attachments == nil {
		req.Attachments = []string{}
	}
	if payload.OrderDate != "" {
		if date, err := time.Parse(time.RFC3339, payload.OrderDate); err == nil {
			utc := date.UTC()
			req.OrderDate = &utc
		}
	}

	if err := s.requests.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			// Lost a concurrent race; fetch the winner's status for the 409.
			status := ""
			if existing, readErr := s.requests.GetByExternalOrderID(ctx, payload.ExternalOrderID); readErr == nil {
				status = existing.Status
			}
			return uuid.Nil, apperr.Conflict("return request already exists for this order", status)
		}
		metrics.OperationErrorsTotal.WithLabelValues("create_return_request").Inc()
		return uuid.Nil, apperr.Upstream("create return request", err)
	}

	metrics.ReturnRequestsCreatedTotal.Inc()
	s.logger.Info("return request created",
		zap.String("return_id", req.ID.String()),
		zap.String("external_order_id", req.ExternalOrderID))

	return req.ID, nil
}

// Transition applies one admin action. Non-empty notes replace admin_notes;
// empty notes preserve whatever was there. Every action except reviewing
// stamps resolution_date. Exactly one admin action audit record is appended;
// if that append fails after the status write landed, the transition still
// succeeds (status is authoritative, the audit trail is best-effort) and the
// gap is logged.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, action, notes string) (*repository.ReturnRequest, error) {
	status, ok := repository.ActionStatus[action]
	if !ok {
		return nil, apperr.Validation("invalid action, must be one of: approve_refund, approve_resend, deny, reviewing")
	}

	current, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, apperr.NotFound("return request")
		}
		return nil, apperr.Upstream("get return request", err)
	}

	var notesPtr *string
	if notes != "" {
		notesPtr = &notes
	}

	now := time.Now().UTC()
	var resolutionDate *time.Time
	if action != repository.ActionReviewing {
		resolutionDate = &now
	}

	if err := s.requests.UpdateStatus(ctx, id, status, notesPtr, resolutionDate); err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, apperr.NotFound("return request")
		}
		metrics.OperationErrorsTotal.WithLabelValues("transition_return_request").Inc()
		return nil, apperr.Upstream("update return request status", err)
	}

	auditEntry := &repository.AdminAction{
		ReturnRequestID: id,
		Action:          action,
		Notes:           notesPtr,
	}
	if err := s.actions.Create(ctx, auditEntry); err != nil {
		s.logger.Error("audit record write failed after status update; audit trail has a gap",
			zap.String("return_id", id.String()),
			zap.String("action", action),
			zap.Error(err))
		metrics.OperationErrorsTotal.WithLabelValues("append_admin_action").Inc()
	}

	metrics.AdminActionsTotal.WithLabelValues(action).Inc()

	current.Status = status
	current.UpdatedAt = now
	if notesPtr != nil {
		current.AdminNotes = *notesPtr
	}
	if resolutionDate != nil {
		current.ResolutionDate = resolutionDate
	}
	return current, nil
}

// Counts is the global dashboard breakdown, computed over all requests
// regardless of the active list filter.
type Counts struct {
	Pending        int `json:"pending"`
	Reviewing      int `json:"reviewing"`
	ApprovedRefund int `json:"approved_refund"`
	ApprovedResend int `json:"approved_resend"`
	Denied         int `json:"denied"`
}

type ListResult struct {
	Returns []*repository.ReturnRequestWithStore `json:"returns"`
	Counts  Counts                               `json:"counts"`
}

// List returns one page of requests joined with store display names, plus the
// global status counts.
func (s *Service) List(ctx context.Context, filter repository.ListFilter) (*ListResult, error) {
	// "all" is the caller's sentinel for no status filter.
	if filter.Status == "all" {
		filter.Status = ""
	}
	if filter.Status != "" {
		if _, ok := statusSet[filter.Status]; !ok {
			return nil, apperr.Validation("unknown status filter %q", filter.Status)
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	rows, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, apperr.Upstream("list return requests", err)
	}

	buckets, err := s.requests.CountByStatus(ctx)
	if err != nil {
		return nil, apperr.Upstream("count return requests", err)
	}

	result := &ListResult{Returns: rows}
	if result.Returns == nil {
		result.Returns = []*repository.ReturnRequestWithStore{}
	}
	for _, b := range buckets {
		switch b.Status {
		case repository.StatusPending:
			result.Counts.Pending = b.Count
		case repository.StatusReviewing:
			result.Counts.Reviewing = b.Count
		case repository.StatusApprovedRefund:
			result.Counts.ApprovedRefund = b.Count
		case repository.StatusApprovedResend:
			result.Counts.ApprovedResend = b.Count
		case repository.StatusDenied:
			result.Counts.Denied = b.Count
		}
	}
	return result, nil
}

// History lists the admin actions recorded for one request, oldest first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]*repository.AdminAction, error) {
	if _, err := s.requests.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, apperr.NotFound("return request")
		}
		return nil, apperr.Upstream("get return request", err)
	}

	actions, err := s.actions.GetByReturnRequestID(ctx, id)
	if err != nil {
		return nil, apperr.Upstream("list admin actions", err)
	}
	if actions == nil {
		actions = []*repository.AdminAction{}
	}
	return actions, nil
}

// GetForCustomer fetches one request when the supplied email matches the one
// on record. This backs the receipt download; it is a possession check, not
// authentication.
func (s *Service) GetForCustomer(ctx context.Context, id uuid.UUID, email string) (*repository.ReturnRequest, error) {
	if email == "" {
		return nil, apperr.Validation("customer_email is required")
	}
	req, err := s.requests.GetByIDAndEmail(ctx, id, email)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, apperr.NotFound("return request")
		}
		return nil, apperr.Upstream("get return request", err)
	}
	return req, nil
}

// GetForAudit reads the current status without touching anything, so the
// audit middleware can record old_status before a transition lands.
func (s *Service) GetForAudit(ctx context.Context, id uuid.UUID) (string, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return req.Status, nil
}

var statusSet = map[string]struct{}{
	repository.StatusPending:        {},
	repository.StatusReviewing:      {},
	repository.StatusApprovedRefund: {},
	repository.StatusApprovedResend: {},
	repository.StatusDenied:         {},
}
