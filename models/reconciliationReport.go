package models

import (
	"context"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
)

// Drift and repair findings (nightly/operator-triggered runs).
type ReconciliationReport struct {
	ID            int       `gorm:"primary_key" json:"id"`
	CheckType     string    `gorm:"size:50;index;not null" json:"check_type"`  // e.g. PROJECT_DISCREPANCY, LEDGER_BACKFILL
	EntityType    string    `gorm:"size:50;index;not null" json:"entity_type"` // e.g. Project, PurchaseOrder
	EntityId      string    `gorm:"size:64;index;not null" json:"entity_id"`
	Details       string    `gorm:"type:text" json:"details"` // human-readable mismatch detail
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func CreateReconciliationReport(tx *gorm.DB, checkType string, entityType string, entityId string, details string, correlationId string) error {
	report := ReconciliationReport{
		CheckType:     checkType,
		EntityType:    entityType,
		EntityId:      entityId,
		Details:       details,
		CorrelationId: correlationId,
	}
	return tx.Create(&report).Error
}

func GetReconciliationReports(ctx context.Context, correlationId *string, checkType *string) ([]*ReconciliationReport, error) {
	db := config.GetDB()
	var results []*ReconciliationReport

	dbCtx := db.WithContext(ctx)
	if correlationId != nil && *correlationId != "" {
		dbCtx = dbCtx.Where("correlation_id = ?", *correlationId)
	}
	if checkType != nil && *checkType != "" {
		dbCtx = dbCtx.Where("check_type = ?", *checkType)
	}
	if err := dbCtx.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
