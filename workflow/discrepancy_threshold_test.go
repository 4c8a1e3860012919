package workflow

import (
	"testing"

	"github.com/shopspring/decimal"
)

func defaultThresholds() DiscrepancyThresholds {
	return DiscrepancyThresholds{
		Absolute: decimal.NewFromInt(100),
		Relative: decimal.NewFromFloat(0.01),
	}
}

func TestExceedsDiscrepancyThresholds(t *testing.T) {
	th := defaultThresholds()
	cases := []struct {
		name    string
		stored  decimal.Decimal
		derived decimal.Decimal
		want    bool
	}{
		{"exact match", decimal.NewFromInt(5000), decimal.NewFromInt(5000), false},
		{"within absolute", decimal.NewFromInt(5090), decimal.NewFromInt(5000), false},
		{"at absolute boundary", decimal.NewFromInt(5100), decimal.NewFromInt(5000), false},
		// 150 over but only 0.15% of 100000: noise on a large base
		{"above absolute below relative", decimal.NewFromInt(100150), decimal.NewFromInt(100000), false},
		// 150 over and 3% of 5000: a real discrepancy
		{"above both", decimal.NewFromInt(5150), decimal.NewFromInt(5000), true},
		{"stored below derived", decimal.NewFromInt(4800), decimal.NewFromInt(5000), true},
		// relative has no base when the derived value is zero
		{"derived zero small diff", decimal.NewFromInt(50), decimal.Zero, false},
		{"derived zero large diff", decimal.NewFromInt(500), decimal.Zero, true},
		{"negative derived", decimal.NewFromInt(0), decimal.NewFromInt(-5000), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ExceedsDiscrepancyThresholds(c.stored, c.derived, th); got != c.want {
				t.Fatalf("stored=%s derived=%s: got %v, want %v",
					c.stored.String(), c.derived.String(), got, c.want)
			}
		})
	}
}

func TestDefaultDiscrepancyThresholds(t *testing.T) {
	t.Setenv("DISCREPANCY_ABS_THRESHOLD", "")
	t.Setenv("DISCREPANCY_REL_THRESHOLD", "")
	th := DefaultDiscrepancyThresholds()
	if !th.Absolute.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("default absolute = %s", th.Absolute.String())
	}
	if !th.Relative.Equal(decimal.NewFromFloat(0.01)) {
		t.Fatalf("default relative = %s", th.Relative.String())
	}

	t.Setenv("DISCREPANCY_ABS_THRESHOLD", "250")
	t.Setenv("DISCREPANCY_REL_THRESHOLD", "0.05")
	th = DefaultDiscrepancyThresholds()
	if !th.Absolute.Equal(decimal.NewFromInt(250)) || !th.Relative.Equal(decimal.NewFromFloat(0.05)) {
		t.Fatalf("env thresholds not applied: %s / %s", th.Absolute.String(), th.Relative.String())
	}
}
