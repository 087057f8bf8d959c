package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emberplay/economy-core/internal/models"
)

// QuestRepository handles bucketed quest completion tracking and the raw
// event log.
type QuestRepository struct {
	db *gorm.DB
}

// NewQuestRepository creates a new quest repository.
func NewQuestRepository(db *DB) *QuestRepository {
	return &QuestRepository{db: db.DB}
}

// WithTx returns a repository bound to the given transaction.
func (r *QuestRepository) WithTx(tx *gorm.DB) *QuestRepository {
	return &QuestRepository{db: tx}
}

// RecordEvent inserts the raw ingested event.
func (r *QuestRepository) RecordEvent(event *models.QuestEvent) error {
	return r.db.Create(event).Error
}

// GetCompletion retrieves the completion row for one quest bucket, or nil.
func (r *QuestRepository) GetCompletion(questID uint, userID, bucket string) (*models.QuestCompletion, error) {
	var completion models.QuestCompletion
	err := r.db.
		Where("quest_id = ? AND user_id = ? AND bucket = ?", questID, userID, bucket).
		First(&completion).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &completion, nil
}

// AddProgress adds value to a bucket's progress, capped at the quest's
// required count, and flips XPAwarded exactly once when the threshold is
// first crossed. Returns the row and whether this call awarded the quest.
// Must run inside a transaction: the row is locked so concurrent events
// against the same bucket serialize.
func (r *QuestRepository) AddProgress(quest *models.Quest, userID, bucket string, value int64, at time.Time) (*models.QuestCompletion, bool, error) {
	var completion models.QuestCompletion
	err := r.db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("quest_id = ? AND user_id = ? AND bucket = ?", quest.ID, userID, bucket).
		First(&completion).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		completion = models.QuestCompletion{
			QuestID: quest.ID,
			UserID:  userID,
			Bucket:  bucket,
		}
		if err := r.db.Create(&completion).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Creation race; reread under the lock and continue.
				if err := r.db.
					Clauses(clause.Locking{Strength: "UPDATE"}).
					Where("quest_id = ? AND user_id = ? AND bucket = ?", quest.ID, userID, bucket).
					First(&completion).Error; err != nil {
					return nil, false, err
				}
			} else {
				return nil, false, err
			}
		}
	} else if err != nil {
		return nil, false, err
	}

	completion.Progress += value
	if completion.Progress > quest.RequiredCount {
		completion.Progress = quest.RequiredCount
	}

	awarded := false
	if completion.Progress >= quest.RequiredCount && !completion.XPAwarded {
		completion.XPAwarded = true
		completion.CompletedAt = &at
		awarded = true
	}

	if err := r.db.Save(&completion).Error; err != nil {
		return nil, false, err
	}
	return &completion, awarded, nil
}

// MarkBonusClaimed stamps the bonus claim time on a completion row exactly
// once. Returns false when the bonus was already claimed.
func (r *QuestRepository) MarkBonusClaimed(completionID uint, at time.Time) (bool, error) {
	res := r.db.Model(&models.QuestCompletion{}).
		Where("id = ? AND bonus_claimed_at IS NULL", completionID).
		Update("bonus_claimed_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetUserCompletions returns a user's completion rows for a set of quests.
func (r *QuestRepository) GetUserCompletions(questIDs []uint, userID string) ([]models.QuestCompletion, error) {
	if len(questIDs) == 0 {
		return nil, nil
	}
	var completions []models.QuestCompletion
	err := r.db.
		Where("quest_id IN ? AND user_id = ?", questIDs, userID).
		Find(&completions).Error
	return completions, err
}
