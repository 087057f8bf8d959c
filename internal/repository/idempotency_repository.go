package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/emberplay/economy-core/internal/models"
)

// ErrDuplicatePending is returned when a concurrent request already holds the
// pending marker for a (scope, key) pair.
var ErrDuplicatePending = errors.New("pending record already exists for scope and key")

// IdempotencyRepository handles idempotency record persistence.
type IdempotencyRepository struct {
	db *gorm.DB
}

// NewIdempotencyRepository creates a new idempotency repository.
func NewIdempotencyRepository(db *DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db.DB}
}

// WithTx returns a repository bound to the given transaction.
func (r *IdempotencyRepository) WithTx(tx *gorm.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: tx}
}

// Find retrieves the record for (scope, key), or nil when none exists.
func (r *IdempotencyRepository) Find(scope, key string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	err := r.db.Where("scope = ? AND key = ?", scope, key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// InsertPending atomically claims (scope, key) by inserting a pending record.
// The composite unique index decides races: the losing insert returns
// ErrDuplicatePending.
func (r *IdempotencyRepository) InsertPending(scope, key, requestHash string) (*models.IdempotencyRecord, error) {
	rec := &models.IdempotencyRecord{
		Scope:       scope,
		Key:         key,
		RequestHash: requestHash,
		Status:      models.IdempotencyStatusPending,
		LockedAt:    time.Now().UTC(),
	}
	err := r.db.Create(rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrDuplicatePending
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Reacquire retakes a non-completed record for a retry attempt: a failed
// record, or a pending one whose marker is older than staleAfter. The update
// is conditioned on the observed state so only one retry wins.
func (r *IdempotencyRepository) Reacquire(rec *models.IdempotencyRecord, requestHash string, staleAfter time.Duration) (bool, error) {
	now := time.Now().UTC()

	tx := r.db.Model(&models.IdempotencyRecord{}).
		Where("id = ? AND status = ?", rec.ID, rec.Status)
	if rec.Status == models.IdempotencyStatusPending {
		tx = tx.Where("locked_at <= ?", now.Add(-staleAfter))
	}

	res := tx.Updates(map[string]interface{}{
		"status":       models.IdempotencyStatusPending,
		"request_hash": requestHash,
		"locked_at":    now,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkCompleted stores the response and finalizes the record. Completed
// records are never mutated again.
func (r *IdempotencyRepository) MarkCompleted(id uint, responseBody []byte) error {
	now := time.Now().UTC()
	return r.db.Model(&models.IdempotencyRecord{}).
		Where("id = ? AND status = ?", id, models.IdempotencyStatusPending).
		Updates(map[string]interface{}{
			"status":        models.IdempotencyStatusCompleted,
			"response_body": responseBody,
			"completed_at":  now,
		}).Error
}

// MarkFailed releases the record so a legitimate retry can re-attempt.
func (r *IdempotencyRepository) MarkFailed(id uint) error {
	return r.db.Model(&models.IdempotencyRecord{}).
		Where("id = ? AND status = ?", id, models.IdempotencyStatusPending).
		Update("status", models.IdempotencyStatusFailed).Error
}

// ReapStalePending marks pending records older than ttl as failed so retries
// stop being rejected after a crash mid-transaction. Returns the number of
// reclaimed records.
func (r *IdempotencyRepository) ReapStalePending(ttl time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	res := r.db.Model(&models.IdempotencyRecord{}).
		Where("status = ? AND locked_at <= ?", models.IdempotencyStatusPending, cutoff).
		Update("status", models.IdempotencyStatusFailed)
	return res.RowsAffected, res.Error
}

// CountByStatus returns the number of records currently in the given status.
func (r *IdempotencyRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&models.IdempotencyRecord{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
