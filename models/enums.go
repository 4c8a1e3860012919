package models

import "errors"

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusPendingApproval   PurchaseOrderStatus = "PendingApproval"
	PurchaseOrderStatusApproved          PurchaseOrderStatus = "Approved"
	PurchaseOrderStatusRejected          PurchaseOrderStatus = "Rejected"
	PurchaseOrderStatusSentToSupplier    PurchaseOrderStatus = "SentToSupplier"
	PurchaseOrderStatusPartiallyReceived PurchaseOrderStatus = "PartiallyReceived"
	PurchaseOrderStatusReceived          PurchaseOrderStatus = "Received"
)

func ParsePurchaseOrderStatus(s string) (PurchaseOrderStatus, error) {
	statuses := map[string]PurchaseOrderStatus{
		"PendingApproval":   PurchaseOrderStatusPendingApproval,
		"Approved":          PurchaseOrderStatusApproved,
		"Rejected":          PurchaseOrderStatusRejected,
		"SentToSupplier":    PurchaseOrderStatusSentToSupplier,
		"PartiallyReceived": PurchaseOrderStatusPartiallyReceived,
		"Received":          PurchaseOrderStatusReceived,
	}
	status, ok := statuses[s]
	if !ok {
		return "", errors.New("invalid purchase order status")
	}
	return status, nil
}

// legalStatusTransitions is the whole state machine. Reception statuses are
// only reachable through ConfirmReception, which enforces its own rules on
// top of this table.
var legalStatusTransitions = map[PurchaseOrderStatus][]PurchaseOrderStatus{
	PurchaseOrderStatusPendingApproval: {PurchaseOrderStatusApproved, PurchaseOrderStatusRejected},
	PurchaseOrderStatusApproved:        {PurchaseOrderStatusSentToSupplier},
	PurchaseOrderStatusSentToSupplier:  {PurchaseOrderStatusReceived, PurchaseOrderStatusPartiallyReceived},
}

// CanTransitionStatus reports whether from -> to is a legal edge.
func CanTransitionStatus(from PurchaseOrderStatus, to PurchaseOrderStatus) bool {
	for _, next := range legalStatusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether no edge leaves the status.
func IsTerminalStatus(s PurchaseOrderStatus) bool {
	return len(legalStatusTransitions[s]) == 0
}

type LedgerEntryType string

const (
	// LedgerEntryTypeReception marks rows written by ConfirmReception.
	LedgerEntryTypeReception LedgerEntryType = "reception"
	// LedgerEntryTypeMigrated marks rows backfilled by the repair engine.
	LedgerEntryTypeMigrated LedgerEntryType = "migrated"
)

type ItemType string

const (
	ItemTypeMaterial ItemType = "Material"
	ItemTypeService  ItemType = "Service"
)

func ParseItemType(s string) (ItemType, error) {
	switch s {
	case "Material":
		return ItemTypeMaterial, nil
	case "Service":
		return ItemTypeService, nil
	default:
		return "", errors.New("invalid item type")
	}
}

// ProjectAggregateField names the incrementally maintained project totals.
type ProjectAggregateField string

const (
	ProjectFieldMaterialsReceived  ProjectAggregateField = "materials_received"
	ProjectFieldMaterialsCommitted ProjectAggregateField = "materials_committed"
	ProjectFieldTravelApproved     ProjectAggregateField = "travel_approved"
	ProjectFieldTravelPending      ProjectAggregateField = "travel_pending"
)

func (f ProjectAggregateField) Valid() bool {
	switch f {
	case ProjectFieldMaterialsReceived, ProjectFieldMaterialsCommitted,
		ProjectFieldTravelApproved, ProjectFieldTravelPending:
		return true
	}
	return false
}
