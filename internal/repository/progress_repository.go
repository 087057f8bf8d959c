package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emberplay/economy-core/internal/models"
)

// ProgressRepository handles per-user season progress.
type ProgressRepository struct {
	db *gorm.DB
}

// NewProgressRepository creates a new progress repository.
func NewProgressRepository(db *DB) *ProgressRepository {
	return &ProgressRepository{db: db.DB}
}

// WithTx returns a repository bound to the given transaction.
func (r *ProgressRepository) WithTx(tx *gorm.DB) *ProgressRepository {
	return &ProgressRepository{db: tx}
}

// Get retrieves a user's progress in a season, or nil when the user has not
// interacted with the season yet.
func (r *ProgressRepository) Get(seasonID uint, userID string) (*models.UserProgress, error) {
	var progress models.UserProgress
	err := r.db.Where("season_id = ? AND user_id = ?", seasonID, userID).First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// GetOrCreate retrieves progress, creating the row on first interaction.
func (r *ProgressRepository) GetOrCreate(seasonID uint, userID string) (*models.UserProgress, error) {
	progress, err := r.Get(seasonID, userID)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		return progress, nil
	}

	progress = &models.UserProgress{
		SeasonID: seasonID,
		UserID:   userID,
		XP:       0,
		Tier:     1,
	}
	err = r.db.Create(progress).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost a creation race; the winner's row is authoritative.
		return r.Get(seasonID, userID)
	}
	if err != nil {
		return nil, err
	}
	return progress, nil
}

// GetLocked retrieves progress under a row lock. Must run inside a
// transaction; callers use it before every XP read-modify-write.
func (r *ProgressRepository) GetLocked(seasonID uint, userID string) (*models.UserProgress, error) {
	var progress models.UserProgress
	err := r.db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("season_id = ? AND user_id = ?", seasonID, userID).
		First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// AddXP adds XP to a locked progress row and recomputes the tier. XP only
// increases; negative deltas are rejected by the service layer before here.
func (r *ProgressRepository) AddXP(progress *models.UserProgress, season *models.Season, xp int64, at time.Time) error {
	progress.XP += xp
	progress.Tier = season.TierForXP(progress.XP)
	progress.LastEventAt = &at
	return r.db.Save(progress).Error
}

// TopBySeason returns the highest-XP progress rows for a season.
func (r *ProgressRepository) TopBySeason(seasonID uint, limit int) ([]models.UserProgress, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var rows []models.UserProgress
	err := r.db.
		Where("season_id = ?", seasonID).
		Order("xp DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
