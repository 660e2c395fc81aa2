package collections

import (
	"os"

	"github.com/shopspring/decimal"
)

// Late Payment of Commercial Debts (Interest) Act 1998: statutory interest is
// 8% over the Bank of England base rate, plus a fixed compensation amount per
// invoice based on the debt size.
const statutoryRatePercent = 8.0

const defaultBaseRatePercent = 5.25

// BaseRatePercent reads the Bank of England base rate from BOE_BASE_RATE so
// deployments can track rate changes without a release.
func BaseRatePercent() decimal.Decimal {
	if v := os.Getenv("BOE_BASE_RATE"); v != "" {
		if rate, err := decimal.NewFromString(v); err == nil && rate.IsPositive() {
			return rate
		}
	}
	return decimal.NewFromFloat(defaultBaseRatePercent)
}

// InterestBreakdown is the statutory late payment charge for one invoice.
// Money in minor units (pence).
type InterestBreakdown struct {
	PrincipalMinor    int64           `json:"principal"`
	DaysOverdue       int             `json:"days_overdue"`
	AnnualRatePercent decimal.Decimal `json:"annual_rate_percent"`
	DailyInterest     int64           `json:"daily_interest"`
	AccruedInterest   int64           `json:"accrued_interest"`
	FixedCompensation int64           `json:"fixed_compensation"`
	TotalDue          int64           `json:"total_due"`
}

// CalculateLateInterest computes statutory interest accrued to date plus the
// fixed recovery compensation. Days overdue at or below zero accrues nothing
// but still attaches the fixed sum once the debt is late at all.
func CalculateLateInterest(principalMinor int64, daysOverdue int) InterestBreakdown {
	rate := BaseRatePercent().Add(decimal.NewFromFloat(statutoryRatePercent))
	principal := decimal.NewFromInt(principalMinor)

	daily := principal.
		Mul(rate).
		Div(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(365))

	days := daysOverdue
	if days < 0 {
		days = 0
	}
	accrued := daily.Mul(decimal.NewFromInt(int64(days))).Round(0).IntPart()

	fixed := int64(0)
	if days > 0 {
		fixed = fixedCompensation(principalMinor)
	}

	return InterestBreakdown{
		PrincipalMinor:    principalMinor,
		DaysOverdue:       days,
		AnnualRatePercent: rate,
		DailyInterest:     daily.Round(0).IntPart(),
		AccruedInterest:   accrued,
		FixedCompensation: fixed,
		TotalDue:          principalMinor + accrued + fixed,
	}
}

// fixedCompensation per the 1998 Act: £40 under £1,000, £70 under £10,000,
// £100 otherwise.
func fixedCompensation(principalMinor int64) int64 {
	switch {
	case principalMinor < 1000_00:
		return 40_00
	case principalMinor < 10000_00:
		return 70_00
	default:
		return 100_00
	}
}
