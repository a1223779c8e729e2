package repository

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrObjectNotFound  = errors.New("not found")
	ErrUniqueViolation = errors.New("unique constraint violation")
)

// Return request lifecycle statuses. pending and reviewing are non-terminal;
// the approved_* pair and denied are terminal. Transitions out of a terminal
// status remain allowed so an admin can override an earlier decision.
const (
	StatusPending        = "pending"
	StatusReviewing      = "reviewing"
	StatusApprovedRefund = "approved_refund"
	StatusApprovedResend = "approved_resend"
	StatusDenied         = "denied"
)

// Admin actions and the statuses they map to.
const (
	ActionApproveRefund = "approve_refund"
	ActionApproveResend = "approve_resend"
	ActionDeny          = "deny"
	ActionReviewing     = "reviewing"
)

var ActionStatus = map[string]string{
	ActionApproveRefund: StatusApprovedRefund,
	ActionApproveResend: StatusApprovedResend,
	ActionDeny:          StatusDenied,
	ActionReviewing:     StatusReviewing,
}

type Store struct {
	ID               uuid.UUID  `db:"id"`
	Name             string     `db:"name"`
	StorefrontDomain string     `db:"storefront_domain"`
	StorefrontToken  string     `db:"storefront_token"`
	IsActive         bool       `db:"is_active"`
	OAuthConnected   bool       `db:"oauth_connected"`
	OAuthConnectedAt *time.Time `db:"oauth_connected_at"`
	OAuthScopes      *string    `db:"oauth_scopes"`
	IntegrationType  *string    `db:"integration_type"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

type ReturnRequest struct {
	ID               uuid.UUID       `db:"id"`
	StoreID          uuid.UUID       `db:"store_id"`
	ExternalOrderID  string          `db:"external_order_id"`
	OrderNumber      string          `db:"order_number"`
	OrderDate        *time.Time      `db:"order_date"`
	OrderTotal       string          `db:"order_total"`
	OrderCurrency    string          `db:"order_currency"`
	CustomerEmail    string          `db:"customer_email"`
	CustomerName     string          `db:"customer_name"`
	CustomerPhone    string          `db:"customer_phone"`
	CustomerDocument string          `db:"customer_document"`
	FormData         json.RawMessage `db:"form_data"`
	Attachments      []string        `db:"attachments"`
	Status           string          `db:"status"`
	AdminNotes       string          `db:"admin_notes"`
	TimeSpentSeconds int             `db:"time_spent_seconds"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
	ResolutionDate   *time.Time      `db:"resolution_date"`
}

// ReturnRequestWithStore is one row of the admin list, joined with the store's
// display fields.
type ReturnRequestWithStore struct {
	ReturnRequest
	StoreName   string `db:"store_name"`
	StoreDomain string `db:"store_domain"`
}

// ListFilter narrows the admin list. Limit/Offset page the table; Status and
// StoreID are optional.
type ListFilter struct {
	Status  string
	StoreID *uuid.UUID
	Limit   int
	Offset  int
}

// StatusCount is one bucket of the global dashboard breakdown.
type StatusCount struct {
	Status string `db:"status"`
	Count  int    `db:"count"`
}

// OrderReturnStatus is the projection used to annotate searched orders with
// any existing return request.
type OrderReturnStatus struct {
	ExternalOrderID string `db:"external_order_id"`
	Status          string `db:"status"`
}

// AdminAction is the append-only audit record of one admin decision. Rows are
// never mutated or deleted.
type AdminAction struct {
	ID              int64     `db:"id"`
	ReturnRequestID uuid.UUID `db:"return_request_id"`
	Action          string    `db:"action"`
	Notes           *string   `db:"notes"`
	CreatedAt       time.Time `db:"created_at"`
}

type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "CREATED"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusDone       TaskStatus = "DONE"
)

// OutboxTask carries one pending audit event on its way to Kafka.
type OutboxTask struct {
	ID          uuid.UUID       `db:"id"`
	Status      TaskStatus      `db:"status"`
	Payload     json.RawMessage `db:"payload"`
	Topic       string          `db:"topic"`
	Attempts    int             `db:"attempts"`
	LastError   *string         `db:"last_error"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
	CompletedAt *time.Time      `db:"completed_at"`
}
