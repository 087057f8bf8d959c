package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/emberplay/economy-core/internal/models"
)

// AuditRepository handles the append-only audit ledger.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db.DB}
}

// WithTx returns a repository bound to the given transaction.
func (r *AuditRepository) WithTx(tx *gorm.DB) *AuditRepository {
	return &AuditRepository{db: tx}
}

// Append inserts an audit event. Events are never updated or deleted.
func (r *AuditRepository) Append(event *models.AuditEvent) error {
	return r.db.Create(event).Error
}

// GetByDateRange returns events created within [start, end), oldest first.
func (r *AuditRepository) GetByDateRange(start, end time.Time) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := r.db.
		Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

// GetByIdempotencyKey returns the events recorded for one mutation.
func (r *AuditRepository) GetByIdempotencyKey(key string) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := r.db.
		Where("idempotency_key = ?", key).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

// GetByTargetUser returns a user's economic history, newest first.
func (r *AuditRepository) GetByTargetUser(userID string, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var events []models.AuditEvent
	err := r.db.
		Where("target_user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
