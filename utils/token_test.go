package utils

import (
	"strings"
	"testing"
)

func TestApprovalTokenRoundTrip(t *testing.T) {
	token, err := ApprovalTokenGenerate(42, "PO-2026-0042")
	if err != nil {
		t.Fatalf("ApprovalTokenGenerate: %v", err)
	}

	claim, err := ApprovalTokenValidate(token)
	if err != nil {
		t.Fatalf("ApprovalTokenValidate: %v", err)
	}
	if claim.PurchaseOrderId != 42 {
		t.Errorf("PurchaseOrderId = %d, want 42", claim.PurchaseOrderId)
	}
	if claim.OrderNumber != "PO-2026-0042" {
		t.Errorf("OrderNumber = %s, want PO-2026-0042", claim.OrderNumber)
	}
	if claim.ExpiresAt <= claim.IssuedAt {
		t.Errorf("token expires before it is issued: iat=%d exp=%d", claim.IssuedAt, claim.ExpiresAt)
	}
}

func TestApprovalTokenValidateRejectsGarbage(t *testing.T) {
	if _, err := ApprovalTokenValidate("not-a-token"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestApprovalTokenValidateRejectsTampered(t *testing.T) {
	token, err := ApprovalTokenGenerate(7, "PO-2026-0007")
	if err != nil {
		t.Fatalf("ApprovalTokenGenerate: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %s", token)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := ApprovalTokenValidate(tampered); err == nil {
		t.Fatal("expected error for tampered signature")
	}
}
