package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/returnlab/portal/internal/db"
	"github.com/returnlab/portal/internal/repository"
)

type OutboxTaskRepo interface {
	Create(ctx context.Context, db db.DB, task *repository.OutboxTask) error
}

// OutboxAuditSink writes audit batches into the outbox table; the publisher
// picks them up from there and ships them to Kafka.
type OutboxAuditSink struct {
	db    db.DB
	repo  OutboxTaskRepo
	topic string
}

func NewOutboxAuditSink(db db.DB, repo OutboxTaskRepo, topic string) *OutboxAuditSink {
	return &OutboxAuditSink{
		db:    db,
		repo:  repo,
		topic: topic,
	}
}

func (s *OutboxAuditSink) Persist(ctx context.Context, batch []AuditLogEntry) error {
	for _, entry := range batch {
		payload, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal audit entry: %w", err)
		}
		task := &repository.OutboxTask{
			Topic:   s.topic,
			Payload: payload,
		}
		if err := s.repo.Create(ctx, s.db, task); err != nil {
			return fmt.Errorf("enqueue audit entry: %w", err)
		}
	}
	return nil
}
