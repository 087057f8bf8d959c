package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emberplay/economy-core/internal/models"
)

// StatsRepository handles daily economy rollup rows.
type StatsRepository struct {
	db *gorm.DB
}

// NewStatsRepository creates a new stats repository.
func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db.DB}
}

// Upsert creates or replaces the rollup row for a date.
func (r *StatsRepository) Upsert(stat *models.DailyEconomyStat) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"xp_granted", "quest_completions", "reward_claims", "retroactive_claims",
			"team_contributions", "currency_credited", "active_contributors", "updated_at",
		}),
	}).Create(stat).Error
}

// GetByDate retrieves the rollup row for a date, or nil.
func (r *StatsRepository) GetByDate(date time.Time) (*models.DailyEconomyStat, error) {
	var stat models.DailyEconomyStat
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	err := r.db.Where("date = ?", day).First(&stat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

// GetRange returns rollup rows within [start, end), oldest first.
func (r *StatsRepository) GetRange(start, end time.Time) ([]models.DailyEconomyStat, error) {
	var stats []models.DailyEconomyStat
	err := r.db.
		Where("date >= ? AND date < ?", start, end).
		Order("date ASC").
		Find(&stats).Error
	return stats, err
}
