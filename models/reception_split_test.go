package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func makeDetails() []PurchaseOrderDetail {
	return []PurchaseOrderDetail{
		{ID: 1, ItemId: 10, Qty: d(10), UnitPrice: d(5)},
		{ID: 2, ItemId: 20, Qty: d(4), UnitPrice: d(25)},
	}
}

func TestSplitPendingLines_FullReception(t *testing.T) {
	received := map[int]decimal.Decimal{10: d(10), 20: d(4)}

	byDetail, pending, err := SplitPendingLines(makeDetails(), received)
	if err != nil {
		t.Fatalf("SplitPendingLines: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending lines, got %d", len(pending))
	}
	if byDetail[1].Cmp(d(10)) != 0 || byDetail[2].Cmp(d(4)) != 0 {
		t.Fatalf("unexpected received quantities: %v", byDetail)
	}
}

func TestSplitPendingLines_PartialSpawnsPending(t *testing.T) {
	// the canonical partial: 10 ordered, 6 received, 4 pending
	received := map[int]decimal.Decimal{10: d(6), 20: d(4)}

	byDetail, pending, err := SplitPendingLines(makeDetails(), received)
	if err != nil {
		t.Fatalf("SplitPendingLines: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending line, got %d", len(pending))
	}
	if pending[0].Detail.ItemId != 10 || pending[0].PendingQty.Cmp(d(4)) != 0 {
		t.Fatalf("expected pending 4 of item 10, got %s of item %d",
			pending[0].PendingQty.String(), pending[0].Detail.ItemId)
	}
	if byDetail[1].Cmp(d(6)) != 0 {
		t.Fatalf("expected received 6 on detail 1, got %s", byDetail[1].String())
	}
}

func TestSplitPendingLines_MissingLineIsFullyPending(t *testing.T) {
	received := map[int]decimal.Decimal{10: d(10)}

	_, pending, err := SplitPendingLines(makeDetails(), received)
	if err != nil {
		t.Fatalf("SplitPendingLines: %v", err)
	}
	if len(pending) != 1 || pending[0].Detail.ItemId != 20 || pending[0].PendingQty.Cmp(d(4)) != 0 {
		t.Fatalf("expected item 20 fully pending, got %+v", pending)
	}
}

func TestSplitPendingLines_OverReceptionRejected(t *testing.T) {
	received := map[int]decimal.Decimal{10: d(11), 20: d(4)}

	if _, _, err := SplitPendingLines(makeDetails(), received); err == nil {
		t.Fatal("expected error for received > ordered")
	}
}

func TestSplitPendingLines_NegativeReceivedRejected(t *testing.T) {
	received := map[int]decimal.Decimal{10: d(-1)}

	if _, _, err := SplitPendingLines(makeDetails(), received); err == nil {
		t.Fatal("expected error for negative received quantity")
	}
}

func TestSplitPendingLines_DuplicateOrderLinesRejected(t *testing.T) {
	// one delivered quantity must never be booked against two lines
	details := []PurchaseOrderDetail{
		{ID: 1, ItemId: 10, Qty: d(10), UnitPrice: d(5)},
		{ID: 2, ItemId: 10, Qty: d(5), UnitPrice: d(5)},
	}
	received := map[int]decimal.Decimal{10: d(4)}

	if _, _, err := SplitPendingLines(details, received); err == nil {
		t.Fatal("expected error for an item appearing on two order lines")
	}
}

func TestSplitPendingLines_UnknownItemRejected(t *testing.T) {
	received := map[int]decimal.Decimal{99: d(1)}

	if _, _, err := SplitPendingLines(makeDetails(), received); err == nil {
		t.Fatal("expected error for item not on the order")
	}
}

func TestComputeOrderTotal(t *testing.T) {
	total := ComputeOrderTotal(makeDetails())
	// 10*5 + 4*25 = 150
	if total.Cmp(d(150)) != 0 {
		t.Fatalf("expected total 150, got %s", total.String())
	}
}

func TestComputeOrderTotal_Empty(t *testing.T) {
	if total := ComputeOrderTotal(nil); !total.IsZero() {
		t.Fatalf("expected zero total, got %s", total.String())
	}
}
