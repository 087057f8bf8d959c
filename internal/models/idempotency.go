package models

import (
	"time"
)

// Idempotency record statuses.
const (
	IdempotencyStatusPending   = "pending"
	IdempotencyStatusCompleted = "completed"
	IdempotencyStatusFailed    = "failed"
)

// IdempotencyRecord tracks one attempted mutation for a (scope, key) pair.
// The composite unique index resolves races between concurrent requests
// carrying the same key: exactly one insert wins.
type IdempotencyRecord struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Scope        string     `gorm:"size:64;not null;uniqueIndex:idx_idempotency_scope_key" json:"scope"`
	Key          string     `gorm:"size:128;not null;uniqueIndex:idx_idempotency_scope_key" json:"key"`
	RequestHash  string     `gorm:"size:64;not null" json:"request_hash"` // sha256 of the canonical payload
	Status       string     `gorm:"size:20;not null;index" json:"status"`
	ResponseBody []byte     `gorm:"type:bytea" json:"-"` // stored result JSON, replayed on key reuse
	LockedAt     time.Time  `gorm:"not null" json:"locked_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName specifies the table name for IdempotencyRecord model.
func (IdempotencyRecord) TableName() string {
	return "idempotency_records"
}

// StalePending reports whether the record is a pending marker older than ttl,
// left behind by a crashed or timed-out attempt and safe to reclaim.
func (r *IdempotencyRecord) StalePending(ttl time.Duration, now time.Time) bool {
	return r.Status == IdempotencyStatusPending && now.Sub(r.LockedAt) > ttl
}
