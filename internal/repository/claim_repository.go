package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/emberplay/economy-core/internal/models"
)

// ErrClaimExists is returned when a (season, user, tier) claim already exists;
// the losing side of a concurrent duplicate claim also lands here via the
// unique constraint.
var ErrClaimExists = errors.New("reward claim already exists for tier")

// ClaimRepository handles tier reward claims.
type ClaimRepository struct {
	db *gorm.DB
}

// NewClaimRepository creates a new claim repository.
func NewClaimRepository(db *DB) *ClaimRepository {
	return &ClaimRepository{db: db.DB}
}

// WithTx returns a repository bound to the given transaction.
func (r *ClaimRepository) WithTx(tx *gorm.DB) *ClaimRepository {
	return &ClaimRepository{db: tx}
}

// Create inserts a claim; a duplicated key surfaces as ErrClaimExists.
func (r *ClaimRepository) Create(claim *models.RewardClaim) error {
	err := r.db.Create(claim).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrClaimExists
	}
	return err
}

// Exists reports whether any claim (standard or retroactive) covers the tier.
func (r *ClaimRepository) Exists(seasonID uint, userID string, tier int) (bool, error) {
	var count int64
	err := r.db.Model(&models.RewardClaim{}).
		Where("season_id = ? AND user_id = ? AND tier = ?", seasonID, userID, tier).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ClaimedTiers returns the set of tiers already claimed in a range.
func (r *ClaimRepository) ClaimedTiers(seasonID uint, userID string, fromTier, toTier int) (map[int]bool, error) {
	var claims []models.RewardClaim
	err := r.db.
		Where("season_id = ? AND user_id = ? AND tier >= ? AND tier <= ?", seasonID, userID, fromTier, toTier).
		Find(&claims).Error
	if err != nil {
		return nil, err
	}
	claimed := make(map[int]bool, len(claims))
	for _, claim := range claims {
		claimed[claim.Tier] = true
	}
	return claimed, nil
}

// GetByUser returns a user's claims in a season, lowest tier first.
func (r *ClaimRepository) GetByUser(seasonID uint, userID string) ([]models.RewardClaim, error) {
	var claims []models.RewardClaim
	err := r.db.
		Where("season_id = ? AND user_id = ?", seasonID, userID).
		Order("tier ASC").
		Find(&claims).Error
	return claims, err
}

// CountBySeason returns the number of claims recorded for a season.
func (r *ClaimRepository) CountBySeason(seasonID uint, claimType string) (int64, error) {
	var count int64
	q := r.db.Model(&models.RewardClaim{}).Where("season_id = ?", seasonID)
	if claimType != "" {
		q = q.Where("claim_type = ?", claimType)
	}
	err := q.Count(&count).Error
	return count, err
}
