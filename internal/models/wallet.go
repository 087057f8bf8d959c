package models

import (
	"time"
)

// Currency codes used by the economy.
const (
	CurrencySeasonCoins = "season_coins"
	CurrencyGems        = "gems"
)

// CurrencyBalance is one user's balance in one currency. Credits lock the row
// before the read-modify-write so concurrent legitimate operations against the
// same user serialize instead of losing updates.
type CurrencyBalance struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:idx_balance_user_currency" json:"user_id"`
	Currency  string    `gorm:"size:32;not null;uniqueIndex:idx_balance_user_currency" json:"currency"`
	Amount    int64     `gorm:"not null;default:0" json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for CurrencyBalance model.
func (CurrencyBalance) TableName() string {
	return "currency_balances"
}

// InventoryItem is a granted non-currency reward (cosmetics, mythic items).
type InventoryItem struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:64;not null;index" json:"user_id"`
	Kind      string    `gorm:"size:64;not null" json:"kind"`
	Tier      int       `gorm:"default:0" json:"tier"`
	Amount    int64     `gorm:"not null;default:1" json:"amount"`
	Source    string    `gorm:"size:64" json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for InventoryItem model.
func (InventoryItem) TableName() string {
	return "inventory_items"
}

// UserTitle is a cosmetic title assignment. Granting an already-held title is
// a no-op.
type UserTitle struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:idx_title_user_title" json:"user_id"`
	Title     string    `gorm:"size:128;not null;uniqueIndex:idx_title_user_title" json:"title"`
	Source    string    `gorm:"size:64" json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for UserTitle model.
func (UserTitle) TableName() string {
	return "user_titles"
}
