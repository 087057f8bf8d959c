package models

import (
	"time"
)

// DailyEconomyStat is an aggregated rollup of one day's audit events,
// maintained by the scheduled analytics job.
type DailyEconomyStat struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Date               time.Time `gorm:"type:date;not null;uniqueIndex" json:"date"`
	XPGranted          int64     `gorm:"default:0" json:"xp_granted"`
	QuestCompletions   int64     `gorm:"default:0" json:"quest_completions"`
	RewardClaims       int64     `gorm:"default:0" json:"reward_claims"`
	RetroactiveClaims  int64     `gorm:"default:0" json:"retroactive_claims"`
	TeamContributions  int64     `gorm:"default:0" json:"team_contributions"`
	CurrencyCredited   int64     `gorm:"default:0" json:"currency_credited"`
	ActiveContributors int64     `gorm:"default:0" json:"active_contributors"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName specifies the table name for DailyEconomyStat model.
func (DailyEconomyStat) TableName() string {
	return "daily_economy_stats"
}
