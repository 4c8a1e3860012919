package workflow

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

// DiscrepancyThresholds carries the dual limits for flagging a project.
// A mismatch is reported only when it exceeds BOTH: the absolute limit
// filters rounding noise on small projects, the relative one keeps large
// projects from tripping on proportionally tiny drift.
type DiscrepancyThresholds struct {
	Absolute decimal.Decimal
	Relative decimal.Decimal
}

// DefaultDiscrepancyThresholds reads the limits from env, with defaults of
// 100 absolute and 1% relative.
func DefaultDiscrepancyThresholds() DiscrepancyThresholds {
	t := DiscrepancyThresholds{
		Absolute: decimal.NewFromInt(100),
		Relative: decimal.NewFromFloat(0.01),
	}
	if v := os.Getenv("DISCREPANCY_ABS_THRESHOLD"); v != "" {
		if d, err := utils.ParseDecimal(v); err == nil {
			t.Absolute = d
		}
	}
	if v := os.Getenv("DISCREPANCY_REL_THRESHOLD"); v != "" {
		if d, err := utils.ParseDecimal(v); err == nil {
			t.Relative = d
		}
	}
	return t
}

// ExceedsDiscrepancyThresholds reports whether |stored - derived| breaches
// both limits. The relative base is the derived figure; when that is zero,
// any absolute breach counts (stored spend with no ledger backing it).
func ExceedsDiscrepancyThresholds(stored decimal.Decimal, derived decimal.Decimal, t DiscrepancyThresholds) bool {
	diff := stored.Sub(derived).Abs()
	if diff.LessThanOrEqual(t.Absolute) {
		return false
	}
	if derived.IsZero() {
		return true
	}
	return diff.Div(derived.Abs()).GreaterThan(t.Relative)
}

// sumReceivedOrderLines derives a project's received materials value from the
// order records alone: received_qty x unit_price over material lines of
// Received and PartiallyReceived orders. A zero received_qty on a Received
// order predates received-quantity tracking and counts at the full ordered
// quantity, mirroring the ledger backfill.
func sumReceivedOrderLines(tx *gorm.DB, projectId string) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := tx.Raw(`
		SELECT COALESCE(SUM(
			(CASE WHEN d.received_qty = 0 AND po.current_status = 'Received' THEN d.qty
			      ELSE d.received_qty END) * d.unit_price), 0)
		FROM purchase_orders po
		JOIN purchase_order_details d ON d.purchase_order_id = po.id
		JOIN items i ON i.id = d.item_id
		WHERE po.project_id = ?
		  AND po.current_status IN ('Received','PartiallyReceived')
		  AND i.item_type = 'Material'
	`, projectId).Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// RunDiscrepancyChecks cross-checks two independent derivations of each
// project's received materials value: what the order records say arrived
// versus what the ledger says it cost. Stored aggregates play no part;
// recomputing them does not mask order-vs-ledger drift. One report row per
// flagged project; returns the number flagged.
func RunDiscrepancyChecks(ctx context.Context, db *gorm.DB, logger *logrus.Logger, correlationId string) (int, error) {
	thresholds := DefaultDiscrepancyThresholds()

	var projectIds []string
	if err := db.WithContext(ctx).Model(&models.Project{}).
		Order("id").
		Pluck("id", &projectIds).Error; err != nil {
		return 0, err
	}

	flagged := 0
	for _, projectId := range projectIds {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			orderDerived, err := sumReceivedOrderLines(tx, projectId)
			if err != nil {
				return err
			}
			ledgerDerived, err := models.SumLedgerByProject(tx, projectId)
			if err != nil {
				return err
			}

			if !ExceedsDiscrepancyThresholds(orderDerived, ledgerDerived, thresholds) {
				return nil
			}
			flagged++

			details := fmt.Sprintf("received_value orders=%s ledger=%s", orderDerived.String(), ledgerDerived.String())
			if err := models.CreateReconciliationReport(tx,
				"PROJECT_DISCREPANCY", "Project", projectId,
				details, correlationId); err != nil {
				return err
			}
			logRepairError(logger, "RunDiscrepancyChecks", "ledger drift detected", projectId,
				&utils.DataIntegrityWarning{EntityType: "Project", EntityId: projectId, Message: details})
			return nil
		})
		if err != nil {
			logRepairError(logger, "RunDiscrepancyChecks", "checking project", projectId, err)
			return flagged, err
		}
	}
	return flagged, nil
}

// ExportDiscrepancyReportExcel writes the reconciliation report rows of one
// run to an .xlsx file for operators.
func ExportDiscrepancyReportExcel(ctx context.Context, correlationId string, filePath string) error {
	reports, err := models.GetReconciliationReports(ctx, &correlationId, nil)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Sheet1"
	f.SetCellValue(sheet, "A1", "CheckType")
	f.SetCellValue(sheet, "B1", "EntityType")
	f.SetCellValue(sheet, "C1", "EntityId")
	f.SetCellValue(sheet, "D1", "Details")
	f.SetCellValue(sheet, "E1", "CreatedAt")

	for i, r := range reports {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+row, r.CheckType)
		f.SetCellValue(sheet, "B"+row, r.EntityType)
		f.SetCellValue(sheet, "C"+row, r.EntityId)
		f.SetCellValue(sheet, "D"+row, r.Details)
		f.SetCellValue(sheet, "E"+row, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	return f.SaveAs(filePath)
}
