package models

import (
	"time"
)

// UserProgress is one user's standing in one season. XP is monotonically
// non-decreasing; Tier is derived from XP and stored for cheap reads.
type UserProgress struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	SeasonID    uint       `gorm:"not null;uniqueIndex:idx_progress_season_user" json:"season_id"`
	UserID      string     `gorm:"size:64;not null;uniqueIndex:idx_progress_season_user" json:"user_id"`
	XP          int64      `gorm:"not null;default:0" json:"xp"`
	Tier        int        `gorm:"not null;default:1" json:"tier"`
	LastEventAt *time.Time `json:"last_event_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for UserProgress model.
func (UserProgress) TableName() string {
	return "battle_pass_user_progress"
}

// QuestCompletion tracks progress toward one quest in one bucket. Progress is
// capped at the quest's required count; XPAwarded flips to true exactly once
// per bucket, which is what makes repeated event delivery safe.
type QuestCompletion struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	QuestID        uint       `gorm:"not null;uniqueIndex:idx_completion_quest_user_bucket" json:"quest_id"`
	Quest          Quest      `gorm:"foreignKey:QuestID" json:"quest,omitempty"`
	UserID         string     `gorm:"size:64;not null;uniqueIndex:idx_completion_quest_user_bucket" json:"user_id"`
	Bucket         string     `gorm:"size:16;not null;uniqueIndex:idx_completion_quest_user_bucket" json:"bucket"`
	Progress       int64      `gorm:"not null;default:0" json:"progress"`
	XPAwarded      bool       `gorm:"not null;default:false" json:"xp_awarded"`
	CompletedAt    *time.Time `json:"completed_at"`
	BonusClaimedAt *time.Time `json:"bonus_claimed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName specifies the table name for QuestCompletion model.
func (QuestCompletion) TableName() string {
	return "battle_pass_quest_completions"
}

// QuestEvent is the raw ingested event, recorded before any quest matching
// for audit and analytics.
type QuestEvent struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserID     string    `gorm:"size:64;not null;index" json:"user_id"`
	EventType  string    `gorm:"size:64;not null;index" json:"event_type"`
	EventValue int64     `gorm:"not null" json:"event_value"`
	OccurredAt time.Time `gorm:"not null" json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for QuestEvent model.
func (QuestEvent) TableName() string {
	return "battle_pass_quest_events"
}

// XPBooster is a temporary multiplier applied to quest XP grants.
type XPBooster struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"size:64;not null;index" json:"user_id"`
	Multiplier float64   `gorm:"not null" json:"multiplier"`
	ExpiresAt  time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for XPBooster model.
func (XPBooster) TableName() string {
	return "battle_pass_xp_boosters"
}

// ActiveAt reports whether the booster applies at t.
func (b *XPBooster) ActiveAt(t time.Time) bool {
	return t.Before(b.ExpiresAt)
}
