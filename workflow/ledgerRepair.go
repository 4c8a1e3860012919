package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

// NormalizeProjectRefs resolves legacy name-keyed project references into
// project ids, on ledger rows and on orders. Rows whose name matches no
// project are left untouched and reported once per run. Idempotent: a
// resolved row no longer matches the selection.
func NormalizeProjectRefs(ctx context.Context, db *gorm.DB, logger *logrus.Logger, correlationId string) (resolved int, unknown int, err error) {
	var nameToId map[string]string
	if err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var terr error
		nameToId, terr = models.ProjectNameIdMap(tx)
		return terr
	}); err != nil {
		logRepairError(logger, "NormalizeProjectRefs", "loading project name map", nil, err)
		return 0, 0, err
	}

	reportedUnknown := make(map[string]bool)

	// ledger rows
	lastId := ""
	for {
		var chunk []models.InventoryHistory
		if err := db.WithContext(ctx).
			Where("project_id = '' AND project_name <> '' AND id > ?", lastId).
			Order("id").
			Limit(repairChunkSize).
			Find(&chunk).Error; err != nil {
			return resolved, unknown, err
		}
		if len(chunk) == 0 {
			break
		}
		lastId = chunk[len(chunk)-1].ID

		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, row := range chunk {
				projectId, ok := nameToId[row.ProjectName]
				if !ok {
					unknown++
					if !reportedUnknown[row.ProjectName] {
						reportedUnknown[row.ProjectName] = true
						if err := models.CreateReconciliationReport(tx,
							"PROJECT_REF_UNRESOLVED", "InventoryHistory", row.ID,
							fmt.Sprintf("no project named %q", row.ProjectName),
							correlationId); err != nil {
							return err
						}
					}
					continue
				}
				if err := tx.Model(&models.InventoryHistory{}).
					Where("id = ?", row.ID).
					Update("project_id", projectId).Error; err != nil {
					return err
				}
				resolved++
			}
			return nil
		})
		if err != nil {
			logRepairError(logger, "NormalizeProjectRefs", "normalizing ledger chunk", lastId, err)
			return resolved, unknown, err
		}
	}

	// orders written before projects had ids
	lastOrderId := 0
	for {
		var chunk []models.PurchaseOrder
		if err := db.WithContext(ctx).
			Where("project_id = '' AND project_name <> '' AND id > ?", lastOrderId).
			Order("id").
			Limit(repairChunkSize).
			Find(&chunk).Error; err != nil {
			return resolved, unknown, err
		}
		if len(chunk) == 0 {
			break
		}
		lastOrderId = chunk[len(chunk)-1].ID

		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, order := range chunk {
				projectId, ok := nameToId[order.ProjectName]
				if !ok {
					unknown++
					if !reportedUnknown[order.ProjectName] {
						reportedUnknown[order.ProjectName] = true
						if err := models.CreateReconciliationReport(tx,
							"PROJECT_REF_UNRESOLVED", "PurchaseOrder", fmt.Sprint(order.ID),
							fmt.Sprintf("no project named %q", order.ProjectName),
							correlationId); err != nil {
							return err
						}
					}
					continue
				}
				if err := tx.Model(&models.PurchaseOrder{}).
					Where("id = ?", order.ID).
					Update("project_id", projectId).Error; err != nil {
					return err
				}
				resolved++
			}
			return nil
		})
		if err != nil {
			logRepairError(logger, "NormalizeProjectRefs", "normalizing order chunk", lastOrderId, err)
			return resolved, unknown, err
		}
	}

	return resolved, unknown, nil
}

// BackfillUnitCosts copies the legacy unit_price column into unit_cost where
// unit_cost is still zero, and rederives total_cost. Rewriting a repaired
// row produces the same values, so reruns are no-ops.
func BackfillUnitCosts(ctx context.Context, db *gorm.DB, logger *logrus.Logger) (int, error) {
	backfilled := 0
	lastId := ""
	for {
		var chunk []models.InventoryHistory
		if err := db.WithContext(ctx).
			Where("unit_cost = 0 AND unit_price <> 0 AND id > ?", lastId).
			Order("id").
			Limit(repairChunkSize).
			Find(&chunk).Error; err != nil {
			return backfilled, err
		}
		if len(chunk) == 0 {
			break
		}
		lastId = chunk[len(chunk)-1].ID

		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, row := range chunk {
				if err := tx.Model(&models.InventoryHistory{}).
					Where("id = ?", row.ID).
					Updates(map[string]interface{}{
						"unit_cost":  row.UnitPrice,
						"total_cost": row.Qty.Mul(row.UnitPrice),
					}).Error; err != nil {
					return err
				}
				backfilled++
			}
			return nil
		})
		if err != nil {
			logRepairError(logger, "BackfillUnitCosts", "backfilling cost chunk", lastId, err)
			return backfilled, err
		}
	}
	return backfilled, nil
}

// receivedLineRow is a received order line that should have a ledger row.
type receivedLineRow struct {
	OrderId       int
	OrderNumber   string
	SupplierId    int
	ProjectId     string
	ProjectName   string
	LocationId    int
	OrderDate     time.Time
	ItemId        int
	ItemSku       string
	ItemName      string
	Qty           decimal.Decimal
	ReceivedQty   decimal.Decimal
	UnitPrice     decimal.Decimal
	UnitOfMeasure string
	CurrentStatus models.PurchaseOrderStatus
}

// BackfillMissingLedgerRows writes "migrated" ledger rows for received
// material lines that predate the ledger. The existing-key set is computed
// once per run; the unique (order, item) index catches anything racing with
// a live reception, and a duplicate is treated as already present.
func BackfillMissingLedgerRows(ctx context.Context, db *gorm.DB, logger *logrus.Logger, correlationId string) (int, error) {
	existing := make(map[string]bool)
	{
		type keyRow struct {
			PurchaseOrderId int
			ItemId          int
		}
		var keys []keyRow
		if err := db.WithContext(ctx).Model(&models.InventoryHistory{}).
			Select("purchase_order_id", "item_id").
			Scan(&keys).Error; err != nil {
			return 0, err
		}
		for _, k := range keys {
			existing[ledgerKey(k.PurchaseOrderId, k.ItemId)] = true
		}
	}

	backfilled := 0
	// compound cursor: a chunk boundary may fall inside an order's lines
	lastOrderId, lastItemId := 0, 0
	for {
		var lines []receivedLineRow
		err := db.WithContext(ctx).Raw(`
			SELECT po.id AS order_id, po.order_number, po.supplier_id, po.project_id, po.project_name,
			       po.location_id, po.order_date, po.current_status,
			       d.item_id, d.item_sku, d.item_name, d.qty, d.received_qty, d.unit_price, d.unit_of_measure
			FROM purchase_orders po
			JOIN purchase_order_details d ON d.purchase_order_id = po.id
			JOIN items i ON i.id = d.item_id
			WHERE po.current_status IN ('Received','PartiallyReceived')
			  AND i.item_type = 'Material'
			  AND (po.id > ? OR (po.id = ? AND d.item_id > ?))
			ORDER BY po.id, d.item_id
			LIMIT ?
		`, lastOrderId, lastOrderId, lastItemId, repairChunkSize).Scan(&lines).Error
		if err != nil {
			return backfilled, err
		}
		if len(lines) == 0 {
			break
		}
		lastOrderId = lines[len(lines)-1].OrderId
		lastItemId = lines[len(lines)-1].ItemId

		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, line := range lines {
				if existing[ledgerKey(line.OrderId, line.ItemId)] {
					continue
				}

				// the key set was computed at run start; a reception confirmed
				// since then is not in it, so re-check against live data
				present, err := models.LedgerEntryExists(tx, line.OrderId, line.ItemId)
				if err != nil {
					return err
				}
				if present {
					existing[ledgerKey(line.OrderId, line.ItemId)] = true
					continue
				}

				// legacy fully-received orders predate received_qty tracking
				qty := line.ReceivedQty
				if qty.IsZero() && line.CurrentStatus == models.PurchaseOrderStatusReceived {
					qty = line.Qty
				}
				if !qty.IsPositive() {
					continue
				}

				_, err = models.RecordReceipt(tx, models.LedgerReceipt{
					PurchaseOrderId: line.OrderId,
					OrderNumber:     line.OrderNumber,
					ItemId:          line.ItemId,
					ItemSku:         line.ItemSku,
					ItemName:        line.ItemName,
					SupplierId:      line.SupplierId,
					Qty:             qty,
					UnitCost:        line.UnitPrice,
					UnitOfMeasure:   line.UnitOfMeasure,
					EventDate:       line.OrderDate,
					ProjectId:       line.ProjectId,
					ProjectName:     line.ProjectName,
					LocationId:      line.LocationId,
					EntryType:       models.LedgerEntryTypeMigrated,
					CorrelationId:   correlationId,
				})
				if err != nil {
					if utils.IsConflictError(err) {
						existing[ledgerKey(line.OrderId, line.ItemId)] = true
						continue
					}
					return err
				}
				existing[ledgerKey(line.OrderId, line.ItemId)] = true
				backfilled++

				if err := models.CreateReconciliationReport(tx,
					"LEDGER_BACKFILL", "PurchaseOrder", fmt.Sprint(line.OrderId),
					fmt.Sprintf("migrated ledger row for item %d (%s x %s)", line.ItemId, qty.String(), line.UnitPrice.String()),
					correlationId); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			logRepairError(logger, "BackfillMissingLedgerRows", "backfilling ledger chunk", lastOrderId, err)
			return backfilled, err
		}
	}
	return backfilled, nil
}

func ledgerKey(orderId int, itemId int) string {
	return fmt.Sprintf("%d/%d", orderId, itemId)
}
