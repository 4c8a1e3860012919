package models

import "testing"

func TestFormatOrderNumber(t *testing.T) {
	cases := []struct {
		prefix string
		year   int
		number int
		want   string
	}{
		{"PO", 2026, 1, "PO-2026-0001"},
		{"PO", 2026, 7, "PO-2026-0007"},
		{"PO", 2025, 482, "PO-2025-0482"},
		{"PO", 2026, 9999, "PO-2026-9999"},
		// overflow past four digits widens rather than wraps
		{"PO", 2026, 10001, "PO-2026-10001"},
		{"REQ", 2026, 12, "REQ-2026-0012"},
	}
	for _, c := range cases {
		if got := FormatOrderNumber(c.prefix, c.year, c.number); got != c.want {
			t.Errorf("FormatOrderNumber(%s, %d, %d) = %s, want %s", c.prefix, c.year, c.number, got, c.want)
		}
	}
}

func TestOrderNumberPrefixDefault(t *testing.T) {
	t.Setenv("ORDER_NUMBER_PREFIX", "")
	if got := orderNumberPrefix(); got != "PO" {
		t.Errorf("default prefix = %s, want PO", got)
	}
	t.Setenv("ORDER_NUMBER_PREFIX", " REQ ")
	if got := orderNumberPrefix(); got != "REQ" {
		t.Errorf("prefix = %s, want REQ", got)
	}
}
