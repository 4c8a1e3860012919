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

type ReceptionLine struct {
	ItemId      int             `json:"item_id" binding:"required"`
	ReceivedQty decimal.Decimal `json:"received_qty"`
}

type NewReception struct {
	ReceptionDate time.Time       `json:"reception_date"`
	Lines         []ReceptionLine `json:"lines" validate:"required,min=1"`
	Comment       string          `json:"comment"`
}

// PendingLine is the unreceived remainder of an order line.
type PendingLine struct {
	Detail     PurchaseOrderDetail
	PendingQty decimal.Decimal
}

// SplitPendingLines resolves received quantities against order lines and
// returns the received quantity per detail plus the pending remainders.
// Quantities must satisfy 0 <= received <= ordered per line; a line absent
// from received counts as fully pending.
func SplitPendingLines(details []PurchaseOrderDetail, received map[int]decimal.Decimal) (map[int]decimal.Decimal, []PendingLine, error) {
	byItem := make(map[int]*PurchaseOrderDetail, len(details))
	for i := range details {
		if _, dup := byItem[details[i].ItemId]; dup {
			return nil, nil, utils.NewValidationError("lines",
				fmt.Sprintf("item %d appears on more than one order line", details[i].ItemId))
		}
		byItem[details[i].ItemId] = &details[i]
	}
	for itemId := range received {
		if _, ok := byItem[itemId]; !ok {
			return nil, nil, utils.NewValidationError("lines",
				fmt.Sprintf("item %d is not on the order", itemId))
		}
	}

	receivedByDetail := make(map[int]decimal.Decimal, len(details))
	var pending []PendingLine
	for _, d := range details {
		qty, ok := received[d.ItemId]
		if !ok {
			qty = decimal.Zero
		}
		if qty.IsNegative() {
			return nil, nil, utils.NewValidationError("lines",
				fmt.Sprintf("received quantity for item %d cannot be negative", d.ItemId))
		}
		if qty.GreaterThan(d.Qty) {
			return nil, nil, utils.NewValidationError("lines",
				fmt.Sprintf("received %s exceeds ordered %s for item %d", qty.String(), d.Qty.String(), d.ItemId))
		}
		receivedByDetail[d.ID] = qty
		if rest := d.Qty.Sub(qty); rest.IsPositive() {
			pending = append(pending, PendingLine{Detail: d, PendingQty: rest})
		}
	}
	return receivedByDetail, pending, nil
}

// ConfirmReception records what actually arrived for a SentToSupplier order:
// stock goes up, one ledger row per received line is appended at the order's
// unit price, the received value moves from committed to received on the
// project, and any shortfall spawns a backorder. A reception with nothing
// pending is a full reception whatever the caller believed; an order is
// received at most once, the backorder carries the remainder.
func ConfirmReception(ctx context.Context, purchaseOrderId int, input *NewReception) (*PurchaseOrder, error) {
	db := config.GetDB()

	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}

	receptionDate := input.ReceptionDate
	if receptionDate.IsZero() {
		receptionDate = time.Now()
	}

	receivedByItem := make(map[int]decimal.Decimal, len(input.Lines))
	for _, line := range input.Lines {
		if _, dup := receivedByItem[line.ItemId]; dup {
			return nil, utils.NewValidationError("lines",
				fmt.Sprintf("item %d appears twice", line.ItemId))
		}
		receivedByItem[line.ItemId] = line.ReceivedQty
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	var result *PurchaseOrder
	err := utils.RunInTransactionWithRetry(ctx, db, 3, func(tx *gorm.DB) error {
		var err error
		result, err = confirmReceptionTx(tx.WithContext(ctx), purchaseOrderId, receivedByItem, receptionDate, input.Comment, correlationId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func confirmReceptionTx(tx *gorm.DB, purchaseOrderId int, receivedByItem map[int]decimal.Decimal, receptionDate time.Time, comment string, correlationId string) (*PurchaseOrder, error) {
	var purchaseOrder PurchaseOrder
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Details").
		First(&purchaseOrder, purchaseOrderId).Error; err != nil {
		return nil, utils.NewNotFoundError("purchase order", purchaseOrderId)
	}

	if purchaseOrder.CurrentStatus != PurchaseOrderStatusSentToSupplier {
		return nil, utils.NewValidationError("status",
			fmt.Sprintf("cannot receive an order in status %s", purchaseOrder.CurrentStatus))
	}

	receivedByDetail, pending, err := SplitPendingLines(purchaseOrder.Details, receivedByItem)
	if err != nil {
		return nil, err
	}

	itemTypes, err := itemTypesForDetails(tx, purchaseOrder.Details)
	if err != nil {
		return nil, err
	}

	// materialValue feeds MaterialsReceived and must equal what lands in the
	// ledger; receivedValue releases MaterialsCommitted, which was charged
	// with the full order total (service lines included) at approval.
	materialValue := decimal.Zero
	receivedValue := decimal.Zero
	for i := range purchaseOrder.Details {
		detail := &purchaseOrder.Details[i]
		qty := receivedByDetail[detail.ID]
		if !qty.IsPositive() {
			continue
		}

		// service lines carry no stock and no ledger rows
		if itemTypes[detail.ItemId] == ItemTypeMaterial {
			materialValue = materialValue.Add(qty.Mul(detail.UnitPrice))
			if err := AdjustLocationStock(tx, detail.ItemId, purchaseOrder.LocationId, qty); err != nil {
				return nil, err
			}
			if _, err := RecordReceipt(tx, LedgerReceipt{
				PurchaseOrderId: purchaseOrder.ID,
				OrderNumber:     purchaseOrder.OrderNumber,
				ItemId:          detail.ItemId,
				ItemSku:         detail.ItemSku,
				ItemName:        detail.ItemName,
				SupplierId:      purchaseOrder.SupplierId,
				Qty:             qty,
				UnitCost:        detail.UnitPrice,
				UnitOfMeasure:   detail.UnitOfMeasure,
				EventDate:       receptionDate,
				ProjectId:       purchaseOrder.ProjectId,
				ProjectName:     purchaseOrder.ProjectName,
				LocationId:      purchaseOrder.LocationId,
				EntryType:       LedgerEntryTypeReception,
				CorrelationId:   correlationId,
			}); err != nil {
				return nil, err
			}
		}

		if err := tx.Model(&PurchaseOrderDetail{}).
			Where("id = ?", detail.ID).
			Update("received_qty", qty).Error; err != nil {
			return nil, err
		}
		detail.ReceivedQty = qty
		receivedValue = receivedValue.Add(qty.Mul(detail.UnitPrice))
	}

	if !materialValue.IsZero() {
		if err := ApplyProjectDelta(tx, purchaseOrder.ProjectId, ProjectFieldMaterialsReceived, materialValue); err != nil {
			return nil, err
		}
	}
	if !receivedValue.IsZero() {
		if err := ApplyProjectDelta(tx, purchaseOrder.ProjectId, ProjectFieldMaterialsCommitted, receivedValue.Neg()); err != nil {
			return nil, err
		}
	}

	newStatus := PurchaseOrderStatusReceived
	if len(pending) > 0 {
		newStatus = PurchaseOrderStatusPartiallyReceived
		backorder, err := createBackorder(tx, &purchaseOrder, pending)
		if err != nil {
			return nil, err
		}
		if comment == "" {
			comment = fmt.Sprintf("partial reception, backorder %s created", backorder.OrderNumber)
		}
	} else if comment == "" {
		comment = "reception confirmed"
	}

	if err := tx.Model(&PurchaseOrder{}).
		Where("id = ?", purchaseOrder.ID).
		Update("current_status", newStatus).Error; err != nil {
		return nil, err
	}
	purchaseOrder.CurrentStatus = newStatus

	if err := createStatusHistory(tx, purchaseOrder.ID, newStatus, comment); err != nil {
		return nil, err
	}

	return &purchaseOrder, nil
}

func itemTypesForDetails(tx *gorm.DB, details []PurchaseOrderDetail) (map[int]ItemType, error) {
	ids := make([]int, 0, len(details))
	for _, d := range details {
		ids = append(ids, d.ItemId)
	}
	type row struct {
		ID       int
		ItemType ItemType
	}
	var rows []row
	if err := tx.Model(&Item{}).Select("id", "item_type").
		Where("id IN ?", utils.UniqueSlice(ids)).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	m := make(map[int]ItemType, len(rows))
	for _, r := range rows {
		m[r.ID] = r.ItemType
	}
	return m, nil
}

// createBackorder spawns the follow-up order for the unreceived remainder.
// It goes straight to SentToSupplier: the supplier already has the original
// order, nobody re-approves the shortfall. No approval email is sent.
func createBackorder(tx *gorm.DB, parent *PurchaseOrder, pending []PendingLine) (*PurchaseOrder, error) {
	details := make([]PurchaseOrderDetail, 0, len(pending))
	for _, p := range pending {
		details = append(details, PurchaseOrderDetail{
			ItemId:        p.Detail.ItemId,
			ItemSku:       p.Detail.ItemSku,
			ItemName:      p.Detail.ItemName,
			Qty:           p.PendingQty,
			UnitPrice:     p.Detail.UnitPrice,
			UnitOfMeasure: p.Detail.UnitOfMeasure,
		})
	}

	orderNumber, err := NextOrderNumber(tx, time.Now())
	if err != nil {
		return nil, err
	}

	backorder := PurchaseOrder{
		OrderNumber:          orderNumber,
		SupplierId:           parent.SupplierId,
		ProjectId:            parent.ProjectId,
		ProjectName:          parent.ProjectName,
		LocationId:           parent.LocationId,
		OrderDate:            time.Now(),
		ExpectedDeliveryDate: parent.ExpectedDeliveryDate,
		CurrentStatus:        PurchaseOrderStatusSentToSupplier,
		OriginalOrderId:      &parent.ID,
		Notes:                fmt.Sprintf("backorder of %s", parent.OrderNumber),
		Details:              details,
		OrderTotal:           ComputeOrderTotal(details),
	}

	if err := tx.Create(&backorder).Error; err != nil {
		return nil, err
	}
	if err := createStatusHistory(tx, backorder.ID, PurchaseOrderStatusSentToSupplier,
		fmt.Sprintf("spawned from %s", parent.OrderNumber)); err != nil {
		return nil, err
	}
	return &backorder, nil
}
