package workflow

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
)

// RecomputeAllProjectAggregates rederives the materials aggregates for every
// project from first principles and overwrites the stored figures:
//   - materials_received  = sum of ledger total_cost for the project
//   - materials_committed = sum of order totals still Approved or
//     SentToSupplier (a partially received order's remainder lives on its
//     backorder, which is SentToSupplier itself)
//
// Travel figures belong to the travel workflow and are preserved. Writing
// the same derived values twice is a no-op, so reruns are safe.
func RecomputeAllProjectAggregates(ctx context.Context, db *gorm.DB, logger *logrus.Logger) (int, error) {
	var projectIds []string
	if err := db.WithContext(ctx).Model(&models.Project{}).
		Order("id").
		Pluck("id", &projectIds).Error; err != nil {
		return 0, err
	}

	recomputed := 0
	for start := 0; start < len(projectIds); start += repairChunkSize {
		end := start + repairChunkSize
		if end > len(projectIds) {
			end = len(projectIds)
		}

		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, projectId := range projectIds[start:end] {
				received, err := models.SumLedgerByProject(tx, projectId)
				if err != nil {
					return err
				}

				committed, err := sumCommittedOrders(tx, projectId)
				if err != nil {
					return err
				}

				if err := models.RecomputeProjectAggregates(tx, projectId, models.ProjectAggregateSums{
					MaterialsReceived:  received,
					MaterialsCommitted: committed,
				}); err != nil {
					return err
				}
				recomputed++
			}
			return nil
		})
		if err != nil {
			logRepairError(logger, "RecomputeAllProjectAggregates", "recomputing project chunk", start, err)
			return recomputed, err
		}
	}
	return recomputed, nil
}

func sumCommittedOrders(tx *gorm.DB, projectId string) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := tx.Model(&models.PurchaseOrder{}).
		Where("project_id = ? AND current_status IN ?", projectId,
			[]models.PurchaseOrderStatus{
				models.PurchaseOrderStatusApproved,
				models.PurchaseOrderStatusSentToSupplier,
			}).
		Select("COALESCE(SUM(order_total), 0)").
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}
