package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/emberplay/economy-core/internal/models"
)

// SeasonRepository handles season, quest, and authored reward catalog reads.
type SeasonRepository struct {
	db *gorm.DB
}

// NewSeasonRepository creates a new season repository.
func NewSeasonRepository(db *DB) *SeasonRepository {
	return &SeasonRepository{db: db.DB}
}

// WithTx returns a repository bound to the given transaction.
func (r *SeasonRepository) WithTx(tx *gorm.DB) *SeasonRepository {
	return &SeasonRepository{db: tx}
}

// Create inserts a season.
func (r *SeasonRepository) Create(season *models.Season) error {
	return r.db.Create(season).Error
}

// GetByKey retrieves a season by its operator-assigned key, or nil when unknown.
func (r *SeasonRepository) GetByKey(key string) (*models.Season, error) {
	var season models.Season
	err := r.db.Where("key = ?", key).First(&season).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &season, nil
}

// GetActive retrieves the season whose window contains now, or nil when no
// season is running.
func (r *SeasonRepository) GetActive(now time.Time) (*models.Season, error) {
	var season models.Season
	err := r.db.
		Where("starts_at <= ? AND ends_at > ?", now, now).
		Order("starts_at DESC").
		First(&season).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &season, nil
}

// CreateQuest inserts a quest definition.
func (r *SeasonRepository) CreateQuest(quest *models.Quest) error {
	return r.db.Create(quest).Error
}

// GetQuestByCode retrieves one quest in a season, or nil when unknown.
func (r *SeasonRepository) GetQuestByCode(seasonID uint, code string) (*models.Quest, error) {
	var quest models.Quest
	err := r.db.Where("season_id = ? AND code = ?", seasonID, code).First(&quest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &quest, nil
}

// GetQuestsByEventType returns the season's quests bound to an event type.
func (r *SeasonRepository) GetQuestsByEventType(seasonID uint, eventType string) ([]models.Quest, error) {
	var quests []models.Quest
	err := r.db.
		Where("season_id = ? AND event_type = ?", seasonID, eventType).
		Order("id ASC").
		Find(&quests).Error
	return quests, err
}

// CreateTierReward inserts an authored reward catalog entry.
func (r *SeasonRepository) CreateTierReward(reward *models.SeasonTierReward) error {
	return r.db.Create(reward).Error
}

// GetTierReward retrieves the authored reward for a tier, or nil when the tier
// falls back to procedural generation.
func (r *SeasonRepository) GetTierReward(seasonID uint, tier int) (*models.SeasonTierReward, error) {
	var reward models.SeasonTierReward
	err := r.db.Where("season_id = ? AND tier = ?", seasonID, tier).First(&reward).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reward, nil
}

// GetTierRewards returns the authored rewards for a tier range, keyed by tier.
func (r *SeasonRepository) GetTierRewards(seasonID uint, fromTier, toTier int) (map[int]models.SeasonTierReward, error) {
	var rewards []models.SeasonTierReward
	err := r.db.
		Where("season_id = ? AND tier >= ? AND tier <= ?", seasonID, fromTier, toTier).
		Find(&rewards).Error
	if err != nil {
		return nil, err
	}
	byTier := make(map[int]models.SeasonTierReward, len(rewards))
	for _, reward := range rewards {
		byTier[reward.Tier] = reward
	}
	return byTier, nil
}
