package server

import (
	"time"
)

// AuditLogEntry is one admin request captured by the audit middleware. Entries
// are batched, written to the outbox table, and shipped to Kafka by the
// outbox publisher.
type AuditLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Handler    string    `json:"handler"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	ReturnID   string    `json:"return_id,omitempty"`
	StoreID    string    `json:"store_id,omitempty"`
	Action     string    `json:"action,omitempty"`
	OldStatus  string    `json:"old_status,omitempty"`
	NewStatus  string    `json:"new_status,omitempty"`
	Request    string    `json:"request,omitempty"`
	Response   string    `json:"response,omitempty"`
}
