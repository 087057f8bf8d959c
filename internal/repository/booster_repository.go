package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/emberplay/economy-core/internal/models"
)

// BoosterRepository handles XP booster lookups.
type BoosterRepository struct {
	db *gorm.DB
}

// NewBoosterRepository creates a new booster repository.
func NewBoosterRepository(db *DB) *BoosterRepository {
	return &BoosterRepository{db: db.DB}
}

// WithTx returns a repository bound to the given transaction.
func (r *BoosterRepository) WithTx(tx *gorm.DB) *BoosterRepository {
	return &BoosterRepository{db: tx}
}

// Create inserts a booster.
func (r *BoosterRepository) Create(booster *models.XPBooster) error {
	return r.db.Create(booster).Error
}

// GetActive returns the user's unexpired booster with the highest multiplier,
// or nil when none applies.
func (r *BoosterRepository) GetActive(userID string, at time.Time) (*models.XPBooster, error) {
	var booster models.XPBooster
	err := r.db.
		Where("user_id = ? AND expires_at > ?", userID, at).
		Order("multiplier DESC").
		First(&booster).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booster, nil
}
