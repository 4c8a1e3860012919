package models

import (
	"context"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

// PurchaseOrderStatusHistory is the audit trail of an order. A row is
// appended on creation, on every status transition and on each reception.
// Rows are deleted together with their order; the inventory ledger is the
// durable record.
type PurchaseOrderStatusHistory struct {
	ID              int                 `gorm:"primary_key" json:"id"`
	PurchaseOrderId int                 `gorm:"index;not null" json:"purchase_order_id"`
	Status          PurchaseOrderStatus `gorm:"type:enum('PendingApproval','Approved','Rejected','SentToSupplier','PartiallyReceived','Received');not null" json:"status"`
	Comment         string              `gorm:"type:text" json:"comment"`
	UserId          int                 `gorm:"index" json:"user_id"`
	UserName        string              `gorm:"size:100" json:"user_name"`
	CreatedAt       time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

func createStatusHistory(tx *gorm.DB, purchaseOrderId int, status PurchaseOrderStatus, comment string) error {
	ctx := tx.Statement.Context

	// actor is optional: repair jobs and backorder spawning run without one
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)

	history := PurchaseOrderStatusHistory{
		PurchaseOrderId: purchaseOrderId,
		Status:          status,
		Comment:         comment,
		UserId:          userId,
		UserName:        userName,
	}

	return tx.Create(&history).Error
}

func GetStatusHistories(ctx context.Context, purchaseOrderId int) ([]*PurchaseOrderStatusHistory, error) {
	db := config.GetDB()
	var results []*PurchaseOrderStatusHistory

	err := db.WithContext(ctx).
		Where("purchase_order_id = ?", purchaseOrderId).
		Order("created_at ASC, id ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
