package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/storesphere/checkout-service/models"
)

// LedgerRepository owns the per-user purchase ledger. SettlePurchase is the
// settlement transaction: all-or-nothing, with the row serialized per user
// at the database so concurrent checkouts by the same user cannot race on
// the read-modify-write of the accumulators.
type LedgerRepository interface {
	SettlePurchase(ctx context.Context, userID, userName string, deltaQty int, deltaAmount float64) (*models.LedgerEntry, error)
	GetEntry(ctx context.Context, userID string) (*models.LedgerEntry, error)
}

type gormLedgerRepo struct {
	db *gorm.DB
}

func NewGormLedgerRepo(db *gorm.DB) LedgerRepository {
	return &gormLedgerRepo{db: db}
}

// SettlePurchase increments the user's totals, creating the row on first
// purchase. The SELECT takes a row lock so the add is applied to the value
// the transaction actually read.
func (r *gormLedgerRepo) SettlePurchase(ctx context.Context, userID, userName string, deltaQty int, deltaAmount float64) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&entry).Error

		switch {
		case err == nil:
			entry.TotalQuantity += deltaQty
			entry.TotalAmount += deltaAmount
			return tx.Model(&models.LedgerEntry{}).
				Where("user_id = ?", userID).
				Updates(map[string]interface{}{
					"total_quantity": entry.TotalQuantity,
					"total_amount":   entry.TotalAmount,
				}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			entry = models.LedgerEntry{
				UserID:        userID,
				UserName:      userName,
				TotalQuantity: deltaQty,
				TotalAmount:   deltaAmount,
			}
			return tx.Create(&entry).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, fmt.Errorf("ledger settlement failed for user %s: %w", userID, err)
	}

	return &entry, nil
}

func (r *gormLedgerRepo) GetEntry(ctx context.Context, userID string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}
