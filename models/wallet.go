// models/wallet.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds the spendable balance used for entry fees, one row per user and currency.
// Balance only moves through conditional debit/credit statements in the store.
type Wallet struct {
	UserID    string          `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	Currency  string          `gorm:"primaryKey;type:varchar(3)" json:"currency"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"balance"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
