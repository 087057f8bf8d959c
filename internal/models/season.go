package models

import (
	"time"
)

// Season is a time-boxed battle-pass progression period. Operators create
// seasons ahead of time; during play they are read-only.
type Season struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	Key                    string    `gorm:"uniqueIndex;size:64;not null" json:"key"`
	Name                   string    `gorm:"size:255" json:"name"`
	XPPerTier              int64     `gorm:"not null" json:"xp_per_tier"`
	MaxBaseTier            int       `gorm:"not null" json:"max_base_tier"`            // last tier with authored content
	MaxBonusTier           int       `gorm:"not null" json:"max_bonus_tier"`           // procedural reward cap
	TeamDailyCap           int64     `gorm:"not null" json:"team_daily_cap"`           // per-user per-day XP donation ceiling
	RepeatableRewardAmount int64     `gorm:"not null" json:"repeatable_reward_amount"` // flat currency past the bonus cap
	StartsAt               time.Time `gorm:"not null;index" json:"starts_at"`
	EndsAt                 time.Time `gorm:"not null;index" json:"ends_at"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// TableName specifies the table name for Season model.
func (Season) TableName() string {
	return "battle_pass_seasons"
}

// ActiveAt reports whether the season window contains t.
func (s *Season) ActiveAt(t time.Time) bool {
	return !t.Before(s.StartsAt) && t.Before(s.EndsAt)
}

// TierForXP derives the ladder position from accumulated XP.
func (s *Season) TierForXP(xp int64) int {
	if s.XPPerTier <= 0 {
		return 1
	}
	return int(xp/s.XPPerTier) + 1
}

// Quest kinds; the kind determines the completion bucket granularity.
const (
	QuestKindDaily      = "daily"      // one completion per calendar day
	QuestKindWeekly     = "weekly"     // one completion per ISO week
	QuestKindRepeatable = "repeatable" // one completion per season ("all" bucket)
)

// Quest binds an event type to a completion requirement and XP reward.
// Definitions are static per season.
type Quest struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	SeasonID      uint       `gorm:"not null;uniqueIndex:idx_quest_season_code" json:"season_id"`
	Season        Season     `gorm:"foreignKey:SeasonID" json:"season,omitempty"`
	Code          string     `gorm:"size:64;not null;uniqueIndex:idx_quest_season_code" json:"code"`
	Name          string     `gorm:"size:255" json:"name"`
	Kind          string     `gorm:"size:20;not null" json:"kind"`
	EventType     string     `gorm:"size:64;not null;index" json:"event_type"`
	RequiredCount int64      `gorm:"not null" json:"required_count"`
	XPReward      int64      `gorm:"not null" json:"xp_reward"`
	BonusCurrency int64      `gorm:"default:0" json:"bonus_currency"` // weekly completion bonus, 0 = none
	StartsAt      *time.Time `json:"starts_at"`                       // nil = season start
	EndsAt        *time.Time `json:"ends_at"`                         // nil = season end
	CreatedAt     time.Time  `json:"created_at"`
}

// TableName specifies the table name for Quest model.
func (Quest) TableName() string {
	return "battle_pass_quests"
}

// ValidAt reports whether the quest validity window contains t, falling back
// to the season window where bounds are unset.
func (q *Quest) ValidAt(t time.Time, season *Season) bool {
	start := season.StartsAt
	if q.StartsAt != nil {
		start = *q.StartsAt
	}
	end := season.EndsAt
	if q.EndsAt != nil {
		end = *q.EndsAt
	}
	return !t.Before(start) && t.Before(end)
}

// SeasonTierReward is an authored catalog entry for a specific tier. Tiers
// without a row fall back to procedural generation.
type SeasonTierReward struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SeasonID   uint      `gorm:"not null;uniqueIndex:idx_tier_reward_season_tier" json:"season_id"`
	Tier       int       `gorm:"not null;uniqueIndex:idx_tier_reward_season_tier" json:"tier"`
	RewardType string    `gorm:"size:20;not null" json:"reward_type"`
	Name       string    `gorm:"size:255" json:"name"`
	ItemKind   string    `gorm:"size:64" json:"item_kind"`
	Amount     int64     `gorm:"default:0" json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for SeasonTierReward model.
func (SeasonTierReward) TableName() string {
	return "battle_pass_tier_rewards"
}
