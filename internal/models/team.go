package models

import (
	"time"
)

// Team is a cooperative grouping pooling XP within one season. Names are
// case-sensitively unique per season.
type Team struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SeasonID    uint      `gorm:"not null;uniqueIndex:idx_team_season_name" json:"season_id"`
	Name        string    `gorm:"size:64;not null;uniqueIndex:idx_team_season_name" json:"name"`
	Slug        string    `gorm:"size:80;index" json:"slug"`
	OwnerUserID string    `gorm:"size:64;not null" json:"owner_user_id"`
	TotalXP     int64     `gorm:"not null;default:0" json:"total_xp"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Members []TeamMember `gorm:"foreignKey:TeamID" json:"members,omitempty"`
}

// TableName specifies the table name for Team model.
func (Team) TableName() string {
	return "battle_pass_teams"
}

// TeamMember binds a user to a team. Membership is exclusive per season,
// enforced by the (season, user) unique index.
type TeamMember struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	TeamID   uint      `gorm:"not null;index" json:"team_id"`
	SeasonID uint      `gorm:"not null;uniqueIndex:idx_member_season_user" json:"season_id"`
	UserID   string    `gorm:"size:64;not null;uniqueIndex:idx_member_season_user" json:"user_id"`
	JoinedAt time.Time `gorm:"not null" json:"joined_at"`
}

// TableName specifies the table name for TeamMember model.
func (TeamMember) TableName() string {
	return "battle_pass_team_members"
}

// TeamDailyContribution is the per-user per-day XP donated to a team. The day
// key implicitly resets the cap; rows are clamped to the season's daily cap.
type TeamDailyContribution struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TeamID    uint      `gorm:"not null;index" json:"team_id"`
	SeasonID  uint      `gorm:"not null;uniqueIndex:idx_contribution_season_user_day" json:"season_id"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:idx_contribution_season_user_day" json:"user_id"`
	Day       string    `gorm:"size:10;not null;uniqueIndex:idx_contribution_season_user_day" json:"day"` // YYYY-MM-DD, UTC
	XP        int64     `gorm:"not null;default:0" json:"xp"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for TeamDailyContribution model.
func (TeamDailyContribution) TableName() string {
	return "battle_pass_team_daily_contributions"
}
