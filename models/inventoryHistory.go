package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

// InventoryHistory is the append-only cost ledger. One row per
// (purchase_order, item) regardless of how many partial receptions it took;
// the unique index is the idempotency guard. Rows are never updated or
// deleted by order operations, only by the repair engine's in-place rewrites.
type InventoryHistory struct {
	ID              string          `gorm:"size:36;primary_key" json:"id"` // uuid
	PurchaseOrderId int             `gorm:"uniqueIndex:idx_ledger_order_item,priority:1;not null" json:"purchase_order_id"`
	ItemId          int             `gorm:"uniqueIndex:idx_ledger_order_item,priority:2;not null" json:"item_id"`
	OrderNumber     string          `gorm:"size:50;index" json:"order_number"`
	ItemSku         string          `gorm:"size:100" json:"item_sku"`
	ItemName        string          `gorm:"size:100" json:"item_name"`
	SupplierId      int             `gorm:"index" json:"supplier_id"`
	Qty             decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	// UnitPrice is the legacy cost column still populated by old writers.
	// The cost-backfill repair copies it into UnitCost where UnitCost is zero.
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	TotalCost     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_cost"`
	UnitOfMeasure string          `gorm:"size:20" json:"unit_of_measure"`
	EventDate     time.Time       `gorm:"index;not null" json:"event_date"`
	ProjectId     string          `gorm:"size:36;index" json:"project_id"`
	// ProjectName is the legacy reference kept for rows written before
	// projects had ids; the normalization repair resolves it into ProjectId.
	ProjectName   string          `gorm:"size:255" json:"project_name"`
	LocationId    int             `gorm:"index" json:"location_id"`
	EntryType     LedgerEntryType `gorm:"type:enum('reception','migrated');default:reception" json:"entry_type"`
	CorrelationId string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// LedgerReceipt is what a reception contributes to the ledger.
type LedgerReceipt struct {
	PurchaseOrderId int
	OrderNumber     string
	ItemId          int
	ItemSku         string
	ItemName        string
	SupplierId      int
	Qty             decimal.Decimal
	UnitCost        decimal.Decimal
	UnitOfMeasure   string
	EventDate       time.Time
	ProjectId       string
	ProjectName     string
	LocationId      int
	EntryType       LedgerEntryType
	CorrelationId   string
}

// RecordReceipt appends one ledger row. A duplicate (order, item) key means
// the receipt was already recorded; callers decide whether that is an error
// or an idempotent no-op via IsDuplicateKeyErr.
func RecordReceipt(tx *gorm.DB, receipt LedgerReceipt) (*InventoryHistory, error) {
	entryType := receipt.EntryType
	if entryType == "" {
		entryType = LedgerEntryTypeReception
	}

	row := InventoryHistory{
		ID:              uuid.NewString(),
		PurchaseOrderId: receipt.PurchaseOrderId,
		ItemId:          receipt.ItemId,
		OrderNumber:     receipt.OrderNumber,
		ItemSku:         receipt.ItemSku,
		ItemName:        receipt.ItemName,
		SupplierId:      receipt.SupplierId,
		Qty:             receipt.Qty,
		UnitCost:        receipt.UnitCost,
		UnitPrice:       receipt.UnitCost,
		TotalCost:       receipt.Qty.Mul(receipt.UnitCost),
		UnitOfMeasure:   receipt.UnitOfMeasure,
		EventDate:       receipt.EventDate,
		ProjectId:       receipt.ProjectId,
		ProjectName:     receipt.ProjectName,
		LocationId:      receipt.LocationId,
		EntryType:       entryType,
		CorrelationId:   receipt.CorrelationId,
	}

	if err := tx.Create(&row).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, utils.NewConflictError("ledger row already exists for order/item", err)
		}
		return nil, err
	}
	return &row, nil
}

// LedgerEntryExists reports whether a (order, item) row is already recorded.
func LedgerEntryExists(tx *gorm.DB, purchaseOrderId int, itemId int) (bool, error) {
	var count int64
	err := tx.Model(&InventoryHistory{}).
		Where("purchase_order_id = ? AND item_id = ?", purchaseOrderId, itemId).
		Count(&count).Error
	return count > 0, err
}

// SumLedgerByProject returns sum(total_cost) of ledger rows for the project.
func SumLedgerByProject(tx *gorm.DB, projectId string) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := tx.Model(&InventoryHistory{}).
		Where("project_id = ?", projectId).
		Select("COALESCE(SUM(total_cost), 0)").
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

func GetLedgerEntriesByOrder(ctx context.Context, purchaseOrderId int) ([]*InventoryHistory, error) {
	db := config.GetDB()
	var results []*InventoryHistory
	err := db.WithContext(ctx).
		Where("purchase_order_id = ?", purchaseOrderId).
		Order("created_at ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func GetLedgerEntriesByProject(ctx context.Context, projectId string, from *time.Time, to *time.Time) ([]*InventoryHistory, error) {
	db := config.GetDB()
	var results []*InventoryHistory

	dbCtx := db.WithContext(ctx).Where("project_id = ?", projectId)
	if from != nil {
		dbCtx = dbCtx.Where("event_date >= ?", *from)
	}
	if to != nil {
		dbCtx = dbCtx.Where("event_date <= ?", *to)
	}
	if err := dbCtx.Order("event_date ASC, created_at ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
