package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emberplay/economy-core/internal/models"
)

// FlagRepository handles feature flag persistence.
type FlagRepository struct {
	db *gorm.DB
}

// NewFlagRepository creates a new flag repository.
func NewFlagRepository(db *DB) *FlagRepository {
	return &FlagRepository{db: db.DB}
}

// GetByKey retrieves a flag, or nil when unknown.
func (r *FlagRepository) GetByKey(key string) (*models.FeatureFlag, error) {
	var flag models.FeatureFlag
	err := r.db.Where("key = ?", key).First(&flag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &flag, nil
}

// GetAll returns every configured flag.
func (r *FlagRepository) GetAll() ([]models.FeatureFlag, error) {
	var flags []models.FeatureFlag
	err := r.db.Order("key ASC").Find(&flags).Error
	return flags, err
}

// Upsert creates or replaces a flag's configuration by key.
func (r *FlagRepository) Upsert(flag *models.FeatureFlag) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"description", "enabled", "rollout_percentage", "rules", "updated_at",
		}),
	}).Create(flag).Error
}

// Delete removes a flag by key.
func (r *FlagRepository) Delete(key string) error {
	return r.db.Where("key = ?", key).Delete(&models.FeatureFlag{}).Error
}
