package models

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validOrderInput() *NewPurchaseOrder {
	return &NewPurchaseOrder{
		SupplierId:    1,
		ProjectId:     "11111111-1111-1111-1111-111111111111",
		LocationId:    1,
		OrderDate:     time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		ApproverEmail: "approver@test.local",
		Details: []NewPurchaseOrderDetail{
			{ItemId: 10, Qty: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(5)},
		},
	}
}

// line-level rules fire before any reference lookup, so they are testable
// without a database

func TestOrderInputRejectsDuplicateItemLines(t *testing.T) {
	input := validOrderInput()
	input.Details = append(input.Details,
		NewPurchaseOrderDetail{ItemId: 10, Qty: decimal.NewFromInt(5), UnitPrice: decimal.NewFromInt(5)})

	if err := input.validate(context.Background()); err == nil {
		t.Fatal("expected error for the same item on two lines")
	}
}

func TestOrderInputRejectsNonPositiveQty(t *testing.T) {
	input := validOrderInput()
	input.Details[0].Qty = decimal.Zero

	if err := input.validate(context.Background()); err == nil {
		t.Fatal("expected error for zero quantity")
	}
}

func TestOrderInputRejectsNegativePrice(t *testing.T) {
	input := validOrderInput()
	input.Details[0].UnitPrice = decimal.NewFromInt(-1)

	if err := input.validate(context.Background()); err == nil {
		t.Fatal("expected error for negative unit price")
	}
}

func TestOrderInputRejectsBadEmail(t *testing.T) {
	input := validOrderInput()
	input.ApproverEmail = "not-an-email"

	if err := input.validate(context.Background()); err == nil {
		t.Fatal("expected error for malformed approver email")
	}
}
