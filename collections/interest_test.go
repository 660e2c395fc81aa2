package collections

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCalculateLateInterest_StatutoryRateAndCompensation(t *testing.T) {
	t.Setenv("BOE_BASE_RATE", "5.25")

	// £1,000 at 13.25% annual: daily = 100000 * 13.25 / 100 / 365 = 36.3p.
	b := CalculateLateInterest(1000_00, 30)

	if !b.AnnualRatePercent.Equal(decimal.NewFromFloat(13.25)) {
		t.Fatalf("annual rate expected 13.25, got %s", b.AnnualRatePercent)
	}
	if b.DailyInterest != 36 {
		t.Fatalf("daily interest expected 36p, got %d", b.DailyInterest)
	}
	// 30 days accrued before rounding: 1089.04p -> 1089.
	if b.AccruedInterest != 1089 {
		t.Fatalf("accrued interest expected 1089p, got %d", b.AccruedInterest)
	}
	// £1,000 falls in the £1,000-£9,999.99 compensation band.
	if b.FixedCompensation != 70_00 {
		t.Fatalf("fixed compensation expected £70, got %d", b.FixedCompensation)
	}
	if b.TotalDue != 1000_00+1089+70_00 {
		t.Fatalf("total expected %d, got %d", 1000_00+1089+70_00, b.TotalDue)
	}
}

func TestCalculateLateInterest_CompensationBands(t *testing.T) {
	t.Setenv("BOE_BASE_RATE", "5.25")
	cases := []struct {
		principalMinor int64
		expected       int64
	}{
		{500_00, 40_00},
		{999_99, 40_00},
		{1000_00, 70_00},
		{9999_99, 70_00},
		{10000_00, 100_00},
	}
	for _, tc := range cases {
		b := CalculateLateInterest(tc.principalMinor, 10)
		if b.FixedCompensation != tc.expected {
			t.Fatalf("compensation for %d expected %d, got %d", tc.principalMinor, tc.expected, b.FixedCompensation)
		}
	}
}

func TestCalculateLateInterest_NotOverdueAccruesNothing(t *testing.T) {
	b := CalculateLateInterest(2000_00, 0)
	if b.AccruedInterest != 0 || b.FixedCompensation != 0 {
		t.Fatalf("nothing should accrue at zero days, got accrued=%d fixed=%d", b.AccruedInterest, b.FixedCompensation)
	}
	if b.TotalDue != 2000_00 {
		t.Fatalf("total should equal principal, got %d", b.TotalDue)
	}

	b = CalculateLateInterest(2000_00, -5)
	if b.DaysOverdue != 0 || b.AccruedInterest != 0 {
		t.Fatalf("negative days clamp to zero, got %+v", b)
	}
}

func TestBaseRatePercent_EnvOverride(t *testing.T) {
	t.Setenv("BOE_BASE_RATE", "4.75")
	if got := BaseRatePercent(); !got.Equal(decimal.NewFromFloat(4.75)) {
		t.Fatalf("expected env rate 4.75, got %s", got)
	}

	t.Setenv("BOE_BASE_RATE", "not-a-number")
	if got := BaseRatePercent(); !got.Equal(decimal.NewFromFloat(5.25)) {
		t.Fatalf("bad env value should fall back to 5.25, got %s", got)
	}
}
