package models

import (
	"time"
)

// Claim types; retroactive claims come from catch-up grants after a late
// season-pass purchase, analytics distinguish them from timely ones.
const (
	ClaimTypeStandard    = "standard"
	ClaimTypeRetroactive = "retroactive"
)

// RewardClaim is a granted tier reward. The (season, user, tier) unique index
// is the last line of defense against concurrent duplicate claims: the losing
// insert surfaces as a duplicated-key error and is reported as DUPLICATE_CLAIM.
type RewardClaim struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SeasonID       uint      `gorm:"not null;uniqueIndex:idx_claim_season_user_tier" json:"season_id"`
	UserID         string    `gorm:"size:64;not null;uniqueIndex:idx_claim_season_user_tier" json:"user_id"`
	Tier           int       `gorm:"not null;uniqueIndex:idx_claim_season_user_tier" json:"tier"`
	ClaimType      string    `gorm:"size:20;not null" json:"claim_type"`
	RewardType     string    `gorm:"size:20;not null" json:"reward_type"`
	RewardName     string    `gorm:"size:255" json:"reward_name"`
	RewardAmount   int64     `gorm:"default:0" json:"reward_amount"`
	IdempotencyKey string    `gorm:"size:128" json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName specifies the table name for RewardClaim model.
func (RewardClaim) TableName() string {
	return "battle_pass_reward_claims"
}
