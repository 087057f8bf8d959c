package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emberplay/economy-core/internal/models"
)

// WalletRepository handles currency balances, inventory, and titles.
type WalletRepository struct {
	db *gorm.DB
}

// NewWalletRepository creates a new wallet repository.
func NewWalletRepository(db *DB) *WalletRepository {
	return &WalletRepository{db: db.DB}
}

// WithTx returns a repository bound to the given transaction.
func (r *WalletRepository) WithTx(tx *gorm.DB) *WalletRepository {
	return &WalletRepository{db: tx}
}

// Credit adds amount to a user's balance. The row is locked before the
// read-modify-write so concurrent legitimate credits against the same user
// serialize instead of losing updates. Must run inside a transaction.
func (r *WalletRepository) Credit(userID, currency string, amount int64) (*models.CurrencyBalance, error) {
	var balance models.CurrencyBalance
	err := r.db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND currency = ?", userID, currency).
		First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		balance = models.CurrencyBalance{
			UserID:   userID,
			Currency: currency,
		}
		if err := r.db.Create(&balance).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				if err := r.db.
					Clauses(clause.Locking{Strength: "UPDATE"}).
					Where("user_id = ? AND currency = ?", userID, currency).
					First(&balance).Error; err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
	} else if err != nil {
		return nil, err
	}

	balance.Amount += amount
	if err := r.db.Save(&balance).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

// GetBalance retrieves a balance, returning a zero-amount row when none exists.
func (r *WalletRepository) GetBalance(userID, currency string) (*models.CurrencyBalance, error) {
	var balance models.CurrencyBalance
	err := r.db.Where("user_id = ? AND currency = ?", userID, currency).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.CurrencyBalance{UserID: userID, Currency: currency}, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// AddInventoryItem appends a granted item to the user's inventory.
func (r *WalletRepository) AddInventoryItem(userID, kind string, tier int, amount int64, source string) (*models.InventoryItem, error) {
	item := &models.InventoryItem{
		ID:     uuid.NewString(),
		UserID: userID,
		Kind:   kind,
		Tier:   tier,
		Amount: amount,
		Source: source,
	}
	if err := r.db.Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

// GetInventory returns a user's items, newest first.
func (r *WalletRepository) GetInventory(userID string, limit int) ([]models.InventoryItem, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var items []models.InventoryItem
	err := r.db.
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// GrantTitle assigns a title; granting an already-held title is a no-op.
func (r *WalletRepository) GrantTitle(userID, title, source string) error {
	err := r.db.Create(&models.UserTitle{
		UserID: userID,
		Title:  title,
		Source: source,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

// GetTitles returns a user's titles, oldest first.
func (r *WalletRepository) GetTitles(userID string) ([]models.UserTitle, error) {
	var titles []models.UserTitle
	err := r.db.
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&titles).Error
	return titles, err
}

// SumCreditedSince sums currency credited after the cutoff; used by rollups.
func (r *WalletRepository) SumCreditedSince(cutoff time.Time) (int64, error) {
	var total int64
	err := r.db.Model(&models.CurrencyBalance{}).
		Where("updated_at >= ?", cutoff).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
