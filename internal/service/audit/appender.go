// Package audit provides the append-only economic event ledger.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emberplay/economy-core/internal/metrics"
	"github.com/emberplay/economy-core/internal/models"
	"github.com/emberplay/economy-core/internal/repository"
	"github.com/emberplay/economy-core/pkg/logger"
)

// Repository is the persistence surface the appender needs.
type Repository interface {
	Append(event *models.AuditEvent) error
}

// Appender writes audit events after their owning mutation has committed.
type Appender struct {
	repo Repository
	log  *logger.Logger
}

// NewAppender creates a new audit appender.
func NewAppender(repo *repository.AuditRepository, log *logger.Logger) *Appender {
	return &Appender{repo: repo, log: log}
}

// NewAppenderWithInterfaces creates an appender with interface dependencies (useful for testing).
func NewAppenderWithInterfaces(repo Repository, log *logger.Logger) *Appender {
	return &Appender{repo: repo, log: log}
}

// Append writes one event, filling in ID and timestamp.
//
//nolint:revive // ctx reserved for future context-aware operations (tracing, cancellation)
func (a *Appender) Append(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if err := a.repo.Append(event); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// AppendAll writes a batch of events belonging to one committed mutation.
// A failed append is logged and counted but never fails the caller: the
// economic effect has already committed and must not be rolled back for
// ledger trouble.
func (a *Appender) AppendAll(ctx context.Context, events []models.AuditEvent) {
	for i := range events {
		if err := a.Append(ctx, &events[i]); err != nil {
			metrics.RecordAuditAppendFailure()
			a.log.Error().
				Err(err).
				Str("event_type", events[i].EventType).
				Str("idempotency_key", events[i].IdempotencyKey).
				Msg("Audit append failed after commit")
		}
	}
}
