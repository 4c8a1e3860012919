package models

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

// InventoryLocationStock tracks on-hand quantity per (item, location).
// Rows appear on first movement. Quantity never goes negative: an adjustment
// that would cross zero is rejected, not clamped.
type InventoryLocationStock struct {
	ID         int             `gorm:"primary_key" json:"id"`
	ItemId     int             `gorm:"uniqueIndex:idx_item_location;not null" json:"item_id"`
	LocationId int             `gorm:"uniqueIndex:idx_item_location;not null" json:"location_id"`
	Qty        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func firstOrCreateLocationStock(tx *gorm.DB, itemId int, locationId int) (*InventoryLocationStock, error) {
	stock := InventoryLocationStock{
		ItemId:     itemId,
		LocationId: locationId,
	}
	// FirstOrCreate will try to find a record matching the conditions, and
	// if it doesn't find one, it will create a new record
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_id = ? AND location_id = ?", itemId, locationId).
		FirstOrCreate(&stock)
	if result.Error != nil {
		return nil, result.Error
	}
	return &stock, nil
}

// AdjustLocationStock applies delta to the (item, location) quantity under
// row lock. Must run inside tx.
func AdjustLocationStock(tx *gorm.DB, itemId int, locationId int, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}

	stock, err := firstOrCreateLocationStock(tx, itemId, locationId)
	if err != nil {
		return err
	}

	next := stock.Qty.Add(delta)
	if next.IsNegative() {
		return utils.NewValidationError("qty",
			fmt.Sprintf("stock for item %d at location %d would become negative (%s)", itemId, locationId, next.String()))
	}

	return tx.Model(&InventoryLocationStock{}).
		Where("item_id = ? AND location_id = ?", itemId, locationId).
		Update("qty", next).Error
}

func GetLocationStock(ctx context.Context, itemId int, locationId int) (*InventoryLocationStock, error) {
	db := config.GetDB()
	var stock InventoryLocationStock
	err := db.WithContext(ctx).
		Where("item_id = ? AND location_id = ?", itemId, locationId).
		First(&stock).Error
	if err != nil {
		return nil, utils.NewNotFoundError("location stock", fmt.Sprintf("%d/%d", itemId, locationId))
	}
	return &stock, nil
}

func GetLocationStocks(ctx context.Context, locationId int) ([]*InventoryLocationStock, error) {
	db := config.GetDB()
	var results []*InventoryLocationStock
	err := db.WithContext(ctx).
		Where("location_id = ?", locationId).
		Order("item_id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
