package models

import "time"

// LedgerEntry is the durable running purchase total for one user. A row is
// created on the first settlement and incremented, never replaced, on every
// settlement after that. The checkout workflow is its only writer.
type LedgerEntry struct {
	UserID        string    `json:"user_id" gorm:"primaryKey;type:varchar(64)"`
	UserName      string    `json:"user_name" gorm:"type:varchar(100);not null"`
	TotalQuantity int       `json:"total_quantity" gorm:"not null;default:0"`
	TotalAmount   float64   `json:"total_amount" gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (LedgerEntry) TableName() string {
	return "purchase_ledger"
}
