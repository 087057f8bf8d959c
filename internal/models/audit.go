package models

import (
	"encoding/json"
	"time"
)

// AuditEvent is an append-only record of one currency or reward affecting
// event. Rows are written after the owning transaction commits and are never
// updated or deleted.
type AuditEvent struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	ActorUserID    string          `gorm:"size:64;index" json:"actor_user_id"`
	TargetUserID   string          `gorm:"size:64;index" json:"target_user_id"`
	EntityType     string          `gorm:"size:64;not null" json:"entity_type"`
	EntityID       string          `gorm:"size:64" json:"entity_id"`
	EventType      string          `gorm:"size:64;not null;index" json:"event_type"`
	Metadata       json.RawMessage `gorm:"type:jsonb" json:"metadata"`
	IdempotencyKey string          `gorm:"size:128;index" json:"idempotency_key"`
	RequestID      string          `gorm:"size:64" json:"request_id"`
	CreatedAt      time.Time       `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for AuditEvent model.
func (AuditEvent) TableName() string {
	return "audit_events"
}

// Audit event types emitted by the progression engine.
const (
	AuditEventXPGranted        = "xp_granted"
	AuditEventRewardClaimed    = "reward_claimed"
	AuditEventTeamContribution = "team_contribution"
	AuditEventCurrencyCredited = "currency_credited"
	AuditEventQuestBonus       = "quest_bonus"
)
