package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/notify"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

type PurchaseOrder struct {
	ID                   int                 `gorm:"primary_key" json:"id"`
	OrderNumber          string              `gorm:"size:50;uniqueIndex;not null" json:"order_number"`
	SupplierId           int                 `gorm:"index;not null" json:"supplier_id" binding:"required"`
	ProjectId            string              `gorm:"size:36;index;not null" json:"project_id" binding:"required"`
	ProjectName          string              `gorm:"size:255" json:"project_name"`
	LocationId           int                 `gorm:"index;not null" json:"location_id"`
	OrderDate            time.Time           `gorm:"not null" json:"order_date" binding:"required"`
	ExpectedDeliveryDate *time.Time          `gorm:"default:null" json:"expected_delivery_date"`
	CurrentStatus        PurchaseOrderStatus `gorm:"type:enum('PendingApproval','Approved','Rejected','SentToSupplier','PartiallyReceived','Received');not null" json:"current_status"`
	OrderTotal           decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"order_total"`
	// OriginalOrderId links a backorder to the order whose shortfall spawned it.
	OriginalOrderId *int                  `gorm:"index;default:null" json:"original_order_id"`
	Notes           string                `gorm:"type:text;default:null" json:"notes"`
	Details         []PurchaseOrderDetail `json:"details"`
	CreatedAt       time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderDetail struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	ItemId          int             `gorm:"index;not null" json:"item_id"`
	ItemSku         string          `gorm:"size:100" json:"item_sku"`
	ItemName        string          `gorm:"size:100" json:"item_name"`
	Qty             decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	ReceivedQty     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"received_qty"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	UnitOfMeasure   string          `gorm:"size:20" json:"unit_of_measure"`
}

type NewPurchaseOrder struct {
	SupplierId           int                      `json:"supplier_id" binding:"required" validate:"required,gt=0"`
	ProjectId            string                   `json:"project_id" binding:"required" validate:"required"`
	LocationId           int                      `json:"location_id" binding:"required" validate:"required,gt=0"`
	OrderDate            time.Time                `json:"order_date" binding:"required" validate:"required"`
	ExpectedDeliveryDate *time.Time               `json:"expected_delivery_date"`
	ApproverEmail        string                   `json:"approver_email" binding:"required" validate:"required,email"`
	Notes                string                   `json:"notes"`
	Details              []NewPurchaseOrderDetail `json:"details" validate:"required,min=1,dive"`
}

type NewPurchaseOrderDetail struct {
	ItemId    int             `json:"item_id" binding:"required" validate:"required,gt=0"`
	Qty       decimal.Decimal `json:"qty" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// BackorderIds returns the ids of orders spawned from this order's
// unreceived remainders.
func (po PurchaseOrder) BackorderIds(ctx context.Context) ([]int, error) {
	db := config.GetDB()
	var ids []int
	err := db.WithContext(ctx).Model(&PurchaseOrder{}).
		Where("original_order_id = ?", po.ID).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// ComputeOrderTotal sums qty * unit price across lines.
func ComputeOrderTotal(details []PurchaseOrderDetail) decimal.Decimal {
	total := decimal.Zero
	for _, d := range details {
		total = total.Add(d.Qty.Mul(d.UnitPrice))
	}
	return total
}

func (input *NewPurchaseOrder) validate(ctx context.Context) error {
	if err := utils.ValidateInput(input); err != nil {
		return err
	}

	// per-line rules before any reference lookups; one line per item keeps
	// the (order, item) ledger key and reception matching unambiguous
	seen := make(map[int]bool, len(input.Details))
	for i, d := range input.Details {
		if !d.Qty.IsPositive() {
			return utils.NewValidationError(fmt.Sprintf("details[%d].qty", i), "quantity must be positive")
		}
		if d.UnitPrice.IsNegative() {
			return utils.NewValidationError(fmt.Sprintf("details[%d].unit_price", i), "unit price cannot be negative")
		}
		if seen[d.ItemId] {
			return utils.NewValidationError(fmt.Sprintf("details[%d].item_id", i),
				fmt.Sprintf("item %d appears on more than one line", d.ItemId))
		}
		seen[d.ItemId] = true
	}

	if err := utils.ValidateResourceId[Supplier](ctx, input.SupplierId); err != nil {
		return utils.NewNotFoundError("supplier", input.SupplierId)
	}
	if err := utils.ValidateResourceId[Project](ctx, input.ProjectId); err != nil {
		return utils.NewNotFoundError("project", input.ProjectId)
	}
	if err := utils.ValidateResourceId[InventoryLocation](ctx, input.LocationId); err != nil {
		return utils.NewNotFoundError("inventory location", input.LocationId)
	}

	itemIds := make([]int, 0, len(input.Details))
	for _, d := range input.Details {
		itemIds = append(itemIds, d.ItemId)
	}
	if err := utils.ValidateResourcesId[Item](ctx, itemIds); err != nil {
		return utils.NewValidationError("details", "one or more items not found")
	}

	return nil
}

// CreatePurchaseOrder validates, numbers and stores the order in one
// transaction, then requests approval by email. If the approval request
// cannot be delivered the order is deleted again (compensating delete) and a
// DependencyError is returned: an order nobody can approve must not linger.
func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	project, err := GetProject(ctx, input.ProjectId)
	if err != nil {
		return nil, err
	}

	items, err := itemsById(ctx, input.Details)
	if err != nil {
		return nil, err
	}

	details := make([]PurchaseOrderDetail, 0, len(input.Details))
	for _, d := range input.Details {
		item := items[d.ItemId]
		details = append(details, PurchaseOrderDetail{
			ItemId:        d.ItemId,
			ItemSku:       item.Sku,
			ItemName:      item.Name,
			Qty:           d.Qty,
			UnitPrice:     d.UnitPrice,
			UnitOfMeasure: item.UnitOfMeasure,
		})
	}

	purchaseOrder := PurchaseOrder{
		SupplierId:           input.SupplierId,
		ProjectId:            project.ID,
		ProjectName:          project.Name,
		LocationId:           input.LocationId,
		OrderDate:            input.OrderDate,
		ExpectedDeliveryDate: input.ExpectedDeliveryDate,
		CurrentStatus:        PurchaseOrderStatusPendingApproval,
		Notes:                input.Notes,
		Details:              details,
		OrderTotal:           ComputeOrderTotal(details),
	}

	tx := db.Begin()
	// rollback is a no-op after a successful commit
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	orderNumber, err := NextOrderNumber(tx, input.OrderDate)
	if err != nil {
		return nil, err
	}
	purchaseOrder.OrderNumber = orderNumber

	if err := tx.WithContext(ctx).Create(&purchaseOrder).Error; err != nil {
		return nil, err
	}

	if err := createStatusHistory(tx.WithContext(ctx), purchaseOrder.ID, PurchaseOrderStatusPendingApproval, "order created"); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if config.ApprovalNotificationsEnabled() {
		if err := sendApprovalRequest(ctx, &purchaseOrder, input.ApproverEmail); err != nil {
			config.LogError(logger, "models", "CreatePurchaseOrder", "approval notification failed, compensating", purchaseOrder.OrderNumber, err)
			if delErr := compensateOrderCreate(ctx, purchaseOrder.ID); delErr != nil {
				config.LogError(logger, "models", "CreatePurchaseOrder", "compensating delete failed", purchaseOrder.ID, delErr)
			}
			return nil, utils.NewDependencyError("mailer", err)
		}
	}

	return &purchaseOrder, nil
}

func itemsById(ctx context.Context, details []NewPurchaseOrderDetail) (map[int]*Item, error) {
	db := config.GetDB()
	ids := make([]int, 0, len(details))
	for _, d := range details {
		ids = append(ids, d.ItemId)
	}
	var items []*Item
	if err := db.WithContext(ctx).Where("id IN ?", utils.UniqueSlice(ids)).Find(&items).Error; err != nil {
		return nil, err
	}
	m := make(map[int]*Item, len(items))
	for _, item := range items {
		m[item.ID] = item
	}
	return m, nil
}

func sendApprovalRequest(ctx context.Context, po *PurchaseOrder, approverEmail string) error {
	token, err := utils.ApprovalTokenGenerate(po.ID, po.OrderNumber)
	if err != nil {
		return err
	}
	return notify.SendApprovalRequest(ctx, notify.ApprovalRequest{
		To:          approverEmail,
		OrderNumber: po.OrderNumber,
		ProjectName: po.ProjectName,
		OrderTotal:  po.OrderTotal,
		Token:       token,
	})
}

// compensateOrderCreate removes an order whose approval request could not be
// sent. Idempotent: a missing row counts as success.
func compensateOrderCreate(ctx context.Context, purchaseOrderId int) error {
	db := config.GetDB()

	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	if err := tx.WithContext(ctx).Where("purchase_order_id = ?", purchaseOrderId).
		Delete(&PurchaseOrderDetail{}).Error; err != nil {
		return err
	}
	if err := tx.WithContext(ctx).Where("purchase_order_id = ?", purchaseOrderId).
		Delete(&PurchaseOrderStatusHistory{}).Error; err != nil {
		return err
	}
	if err := tx.WithContext(ctx).Delete(&PurchaseOrder{}, purchaseOrderId).Error; err != nil {
		return err
	}

	return tx.Commit().Error
}

// UpdateStatusPurchaseOrder applies a legal status transition and appends a
// history row. Reception statuses are not reachable here; ConfirmReception
// owns those edges together with their stock and ledger side effects.
func UpdateStatusPurchaseOrder(ctx context.Context, id int, newStatus PurchaseOrderStatus, comment string) (*PurchaseOrder, error) {
	db := config.GetDB()

	if newStatus == PurchaseOrderStatusReceived || newStatus == PurchaseOrderStatusPartiallyReceived {
		return nil, utils.NewValidationError("status", "reception statuses are set by confirming a reception")
	}

	purchaseOrder, err := utils.FetchModel[PurchaseOrder](ctx, id, "Details")
	if err != nil {
		return nil, utils.NewNotFoundError("purchase order", id)
	}

	oldStatus := purchaseOrder.CurrentStatus
	if !CanTransitionStatus(oldStatus, newStatus) {
		return nil, utils.NewValidationError("status",
			fmt.Sprintf("cannot transition from %s to %s", oldStatus, newStatus))
	}

	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	if err := tx.WithContext(ctx).Model(&purchaseOrder).
		Update("CurrentStatus", newStatus).Error; err != nil {
		return nil, err
	}

	// approval is the moment the order's value becomes committed spend
	if oldStatus == PurchaseOrderStatusPendingApproval && newStatus == PurchaseOrderStatusApproved {
		if err := ApplyProjectDelta(tx.WithContext(ctx), purchaseOrder.ProjectId, ProjectFieldMaterialsCommitted, purchaseOrder.OrderTotal); err != nil {
			return nil, err
		}
	}

	if err := createStatusHistory(tx.WithContext(ctx), purchaseOrder.ID, newStatus, comment); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	purchaseOrder.CurrentStatus = newStatus
	return purchaseOrder, nil
}

// DeletePurchaseOrder removes the order, its lines and its status history.
// Ledger rows, stock and project aggregates are deliberately left alone;
// straightening out the resulting drift is the repair engine's job.
func DeletePurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	purchaseOrder, err := utils.FetchModel[PurchaseOrder](ctx, id, "Details")
	if err != nil {
		return nil, utils.NewNotFoundError("purchase order", id)
	}

	if err := compensateOrderCreate(ctx, id); err != nil {
		return nil, err
	}
	return purchaseOrder, nil
}

// BulkDeletePurchaseOrders deletes each id, skipping missing ones. Returns
// the ids actually deleted.
func BulkDeletePurchaseOrders(ctx context.Context, ids []int) ([]int, error) {
	deleted := make([]int, 0, len(ids))
	for _, id := range utils.UniqueSlice(ids) {
		if _, err := DeletePurchaseOrder(ctx, id); err != nil {
			var nf *utils.NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			return deleted, err
		}
		deleted = append(deleted, id)
	}
	return deleted, nil
}

func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	purchaseOrder, err := utils.FetchModel[PurchaseOrder](ctx, id, "Details")
	if err != nil {
		return nil, utils.NewNotFoundError("purchase order", id)
	}
	return purchaseOrder, nil
}

func GetPurchaseOrderByNumber(ctx context.Context, orderNumber string) (*PurchaseOrder, error) {
	db := config.GetDB()
	var result PurchaseOrder
	err := db.WithContext(ctx).Preload("Details").
		Where("order_number = ?", orderNumber).
		First(&result).Error
	if err != nil {
		return nil, utils.NewNotFoundError("purchase order", orderNumber)
	}
	return &result, nil
}

func GetPurchaseOrders(ctx context.Context, status *PurchaseOrderStatus, supplierId *int, projectId *string) ([]*PurchaseOrder, error) {
	db := config.GetDB()
	var results []*PurchaseOrder

	dbCtx := db.WithContext(ctx).Preload("Details")
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	if supplierId != nil && *supplierId > 0 {
		dbCtx = dbCtx.Where("supplier_id = ?", *supplierId)
	}
	if projectId != nil && *projectId != "" {
		dbCtx = dbCtx.Where("project_id = ?", *projectId)
	}
	if err := dbCtx.Order("order_date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
