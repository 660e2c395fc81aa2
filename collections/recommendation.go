package collections

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Recovery options, ranked by the scoring engine.
const (
	RecoveryContinueInternal = "continue_internal"
	RecoveryDebtAgency       = "debt_agency"
	RecoveryCountyCourt      = "county_court"
	RecoveryWriteOff         = "write_off"
)

const (
	DebtorTypeIndividual = "individual"
	DebtorTypeBusiness   = "business"
	DebtorTypeUnknown    = "unknown"

	RelationshipLow    = "low"
	RelationshipMedium = "medium"
	RelationshipHigh   = "high"
)

// RecommendationInput describes one overdue debt. Amounts are minor units
// (pence). Optional fields default conservatively: unknown debtor, medium
// relationship, no assets, zero attempts.
type RecommendationInput struct {
	InvoiceAmount      int64  `json:"invoice_amount" binding:"required,gt=0"`
	DaysOverdue        int    `json:"days_overdue" binding:"gte=0"`
	IsDisputedDebt     bool   `json:"is_disputed_debt"`
	DebtorType         string `json:"debtor_type" binding:"omitempty,oneof=individual business unknown"`
	PreviousAttempts   int    `json:"previous_attempts" binding:"gte=0"`
	RelationshipValue  string `json:"relationship_value" binding:"omitempty,oneof=low medium high"`
	HasWrittenContract bool   `json:"has_written_contract"`
	HasProofOfDelivery bool   `json:"has_proof_of_delivery"`
	DebtorHasAssets    *bool  `json:"debtor_has_assets"`
}

// RankedOption is one recovery option with its final score.
type RankedOption struct {
	Option string `json:"option"`
	Score  int    `json:"score"`
}

// RecommendationCosts carries the cost model behind the ranking so the caller
// can show the economics, not just the verdict. Money in minor units.
type RecommendationCosts struct {
	CountyCourtFee          int64  `json:"county_court_fee"`
	AgencyCommissionMin     int64  `json:"agency_commission_min"`
	AgencyCommissionMax     int64  `json:"agency_commission_max"`
	AgencyCommissionPercent string `json:"agency_commission_percent"`
	NetRecoveryCourt        int64  `json:"net_recovery_court"`
	NetRecoveryAgencyMin    int64  `json:"net_recovery_agency_min"`
	NetRecoveryAgencyMax    int64  `json:"net_recovery_agency_max"`
}

// RecoveryRecommendation is computed on demand and never persisted.
type RecoveryRecommendation struct {
	PrimaryOption string              `json:"primary_option"`
	Confidence    int                 `json:"confidence"`
	Ranked        []RankedOption      `json:"ranked"`
	Rationale     []string            `json:"rationale"`
	Warnings      []string            `json:"warnings,omitempty"`
	Costs         RecommendationCosts `json:"costs"`
	NextSteps     []string            `json:"next_steps"`
}

// CourtFee returns the UK County Court (Money Claim Online) issue fee for a
// claim amount, both in minor units. Bands current as of November 2024; above
// ten thousand pounds the fee is 5% of the claim capped at ten thousand.
func CourtFee(claimAmountMinor int64) int64 {
	pounds := decimal.NewFromInt(claimAmountMinor).Div(decimal.NewFromInt(100))
	switch {
	case pounds.LessThanOrEqual(decimal.NewFromInt(300)):
		return 35_00
	case pounds.LessThanOrEqual(decimal.NewFromInt(500)):
		return 50_00
	case pounds.LessThanOrEqual(decimal.NewFromInt(1000)):
		return 70_00
	case pounds.LessThanOrEqual(decimal.NewFromInt(1500)):
		return 80_00
	case pounds.LessThanOrEqual(decimal.NewFromInt(3000)):
		return 115_00
	case pounds.LessThanOrEqual(decimal.NewFromInt(5000)):
		return 205_00
	case pounds.LessThanOrEqual(decimal.NewFromInt(10000)):
		return 455_00
	default:
		fee := decimal.NewFromInt(claimAmountMinor).Mul(decimal.NewFromFloat(0.05)).Round(0).IntPart()
		if fee > 10000_00 {
			fee = 10000_00
		}
		return fee
	}
}

// AgencyCommission returns the expected commission band (15-25%) for a debt
// collection agency, in minor units.
func AgencyCommission(amountMinor int64) (min, max int64) {
	amt := decimal.NewFromInt(amountMinor)
	min = amt.Mul(decimal.NewFromFloat(0.15)).Round(0).IntPart()
	max = amt.Mul(decimal.NewFromFloat(0.25)).Round(0).IntPart()
	return min, max
}

// Recommend scores the four recovery options for a debt. Pure function,
// deterministic, no persistence.
func Recommend(in RecommendationInput) RecoveryRecommendation {
	debtorType := in.DebtorType
	if debtorType == "" {
		debtorType = DebtorTypeUnknown
	}
	relationship := in.RelationshipValue
	if relationship == "" {
		relationship = RelationshipMedium
	}
	// Conservative default: no enforceable assets unless told otherwise.
	hasAssets := in.DebtorHasAssets != nil && *in.DebtorHasAssets

	pounds := decimal.NewFromInt(in.InvoiceAmount).Div(decimal.NewFromInt(100))
	courtFee := CourtFee(in.InvoiceAmount)
	commissionMin, commissionMax := AgencyCommission(in.InvoiceAmount)

	scores := map[string]int{
		RecoveryContinueInternal: 15,
		RecoveryDebtAgency:       0,
		RecoveryCountyCourt:      0,
		RecoveryWriteOff:         0,
	}
	var rationale, warnings []string

	// Factor 1: invoice amount. Small debts are not worth fees or commission.
	amountStr := pounds.StringFixed(2)
	switch {
	case pounds.LessThan(decimal.NewFromInt(500)):
		scores[RecoveryWriteOff] += 30
		scores[RecoveryContinueInternal] += 20
		scores[RecoveryCountyCourt] -= 40
		scores[RecoveryDebtAgency] -= 40
		rationale = append(rationale, fmt.Sprintf("Low invoice amount (£%s), recovery costs may exceed the debt", amountStr))
		feePct := decimal.NewFromInt(courtFee).Div(decimal.NewFromInt(in.InvoiceAmount)).Mul(decimal.NewFromInt(100)).Round(0)
		warnings = append(warnings, fmt.Sprintf("Court fee (£%s) is %s%% of the invoice value", decimal.NewFromInt(courtFee).Div(decimal.NewFromInt(100)).StringFixed(2), feePct))
	case pounds.LessThan(decimal.NewFromInt(1500)):
		scores[RecoveryCountyCourt] += 20
		scores[RecoveryDebtAgency] += 10
		rationale = append(rationale, fmt.Sprintf("Medium invoice amount (£%s), County Court is cost-effective", amountStr))
	case pounds.LessThan(decimal.NewFromInt(5000)):
		scores[RecoveryCountyCourt] += 30
		scores[RecoveryDebtAgency] += 20
		rationale = append(rationale, fmt.Sprintf("Good amount for County Court (£%s)", amountStr))
	default:
		scores[RecoveryCountyCourt] += 25
		scores[RecoveryDebtAgency] += 35
		rationale = append(rationale, fmt.Sprintf("High value debt (£%s), both escalation options viable", amountStr))
	}

	// Factor 2: days overdue.
	switch {
	case in.DaysOverdue < 30:
		scores[RecoveryContinueInternal] += 40
		scores[RecoveryCountyCourt] -= 10
		scores[RecoveryDebtAgency] -= 10
		rationale = append(rationale, fmt.Sprintf("Recently overdue (%d days), continue internal attempts", in.DaysOverdue))
	case in.DaysOverdue < 60:
		scores[RecoveryContinueInternal] += 20
		scores[RecoveryCountyCourt] += 20
		scores[RecoveryDebtAgency] += 10
		rationale = append(rationale, fmt.Sprintf("Moderately overdue (%d days), consider escalation soon", in.DaysOverdue))
	case in.DaysOverdue < 90:
		scores[RecoveryCountyCourt] += 30
		scores[RecoveryDebtAgency] += 30
		rationale = append(rationale, fmt.Sprintf("Significantly overdue (%d days), escalation recommended", in.DaysOverdue))
	default:
		scores[RecoveryCountyCourt] += 40
		scores[RecoveryDebtAgency] += 35
		scores[RecoveryWriteOff] += 10
		rationale = append(rationale, fmt.Sprintf("Severely overdue (%d days), urgent escalation needed", in.DaysOverdue))
	}

	// Factor 3: dispute status. A disputed debt must be resolved before any
	// legal or agency route; pushing it externally wastes fees and goodwill.
	if in.IsDisputedDebt {
		scores[RecoveryContinueInternal] += 30
		scores[RecoveryCountyCourt] -= 40
		scores[RecoveryDebtAgency] -= 40
		rationale = append(rationale, "Disputed debt, resolve the dispute before external escalation")
		warnings = append(warnings, "External recovery of disputed debts has low success rates")
	} else {
		scores[RecoveryDebtAgency] += 25
		scores[RecoveryCountyCourt] += 20
		rationale = append(rationale, "Clear debt, both court and agency viable")
	}

	// Factor 4: debtor type.
	switch debtorType {
	case DebtorTypeBusiness:
		scores[RecoveryCountyCourt] += 30
		rationale = append(rationale, "Business debtor, a CCJ has strong impact on credit rating")
	case DebtorTypeIndividual:
		scores[RecoveryDebtAgency] += 25
		rationale = append(rationale, "Individual debtor, an agency can offer flexible payment plans")
	default:
		scores[RecoveryCountyCourt] += 10
		scores[RecoveryDebtAgency] += 10
	}

	// Factor 5: previous collection attempts.
	switch {
	case in.PreviousAttempts < 3:
		scores[RecoveryContinueInternal] += 30
		scores[RecoveryCountyCourt] -= 10
		scores[RecoveryDebtAgency] -= 10
		rationale = append(rationale, fmt.Sprintf("Few collection attempts (%d), try more internal methods first", in.PreviousAttempts))
	case in.PreviousAttempts < 6:
		scores[RecoveryCountyCourt] += 20
		scores[RecoveryDebtAgency] += 20
		rationale = append(rationale, fmt.Sprintf("Multiple attempts made (%d), escalation reasonable", in.PreviousAttempts))
	default:
		scores[RecoveryCountyCourt] += 30
		scores[RecoveryDebtAgency] += 30
		scores[RecoveryWriteOff] += 15
		rationale = append(rationale, fmt.Sprintf("Many failed attempts (%d), diminishing returns on internal effort", in.PreviousAttempts))
	}

	// Factor 6: relationship value.
	switch relationship {
	case RelationshipHigh:
		scores[RecoveryDebtAgency] += 25
		scores[RecoveryCountyCourt] -= 15
		rationale = append(rationale, "High-value relationship, agency action is less damaging than court")
	case RelationshipLow:
		scores[RecoveryCountyCourt] += 20
		rationale = append(rationale, "Low relationship value, court action acceptable")
	default:
		scores[RecoveryCountyCourt] += 10
		scores[RecoveryDebtAgency] += 10
	}

	// Factor 7: evidence strength.
	evidence := 0
	if in.HasWrittenContract {
		evidence++
		rationale = append(rationale, "Written contract strengthens the case")
	}
	if in.HasProofOfDelivery {
		evidence++
		rationale = append(rationale, "Proof of delivery available")
	}
	switch evidence {
	case 2:
		scores[RecoveryCountyCourt] += 30
		rationale = append(rationale, "Strong evidence, excellent for County Court")
	case 1:
		scores[RecoveryCountyCourt] += 15
		scores[RecoveryDebtAgency] += 10
	default:
		scores[RecoveryDebtAgency] += 20
		scores[RecoveryCountyCourt] -= 10
		warnings = append(warnings, "Weak evidence may reduce court success rate")
	}

	// Factor 8: debtor asset status. Neither a judgment nor an agency recovers
	// anything from a debtor with nothing to enforce against.
	if hasAssets {
		scores[RecoveryCountyCourt] += 25
		rationale = append(rationale, "Debtor has assets, a court judgment can be enforced")
	} else {
		scores[RecoveryWriteOff] += 25
		scores[RecoveryCountyCourt] -= 20
		scores[RecoveryDebtAgency] -= 20
		warnings = append(warnings, "No known debtor assets, recovery may be difficult")
	}

	ranked := rankOptions(scores)
	primary := ranked[0].Option
	confidence := ranked[0].Score
	if confidence > 95 {
		confidence = 95
	}
	if confidence < 50 {
		confidence = 50
	}

	return RecoveryRecommendation{
		PrimaryOption: primary,
		Confidence:    confidence,
		Ranked:        ranked,
		Rationale:     rationale,
		Warnings:      warnings,
		Costs: RecommendationCosts{
			CountyCourtFee:          courtFee,
			AgencyCommissionMin:     commissionMin,
			AgencyCommissionMax:     commissionMax,
			AgencyCommissionPercent: "15-25%",
			NetRecoveryCourt:        in.InvoiceAmount - courtFee,
			NetRecoveryAgencyMin:    in.InvoiceAmount - commissionMax,
			NetRecoveryAgencyMax:    in.InvoiceAmount - commissionMin,
		},
		NextSteps: nextStepsFor(primary, courtFee),
	}
}

// rankOptions sorts options by score descending. Ties break by escalation
// friction, least aggressive first: continue, write_off, agency, court.
func rankOptions(scores map[string]int) []RankedOption {
	tieOrder := map[string]int{
		RecoveryContinueInternal: 0,
		RecoveryWriteOff:         1,
		RecoveryDebtAgency:       2,
		RecoveryCountyCourt:      3,
	}
	ranked := make([]RankedOption, 0, len(scores))
	for option, score := range scores {
		ranked = append(ranked, RankedOption{Option: option, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return tieOrder[ranked[i].Option] < tieOrder[ranked[j].Option]
	})
	return ranked
}

func nextStepsFor(option string, courtFeeMinor int64) []string {
	switch option {
	case RecoveryCountyCourt:
		return []string{
			"File claim online via Money Claim Online: https://www.moneyclaim.gov.uk",
			fmt.Sprintf("Pay court fee of £%s", decimal.NewFromInt(courtFeeMinor).Div(decimal.NewFromInt(100)).StringFixed(2)),
			"Court serves claim on debtor (5-7 days); debtor has 14 days to respond",
			"No response leads to Default Judgment; defended claims reach a hearing in 8-12 weeks",
			"Upon judgment, enforce via bailiffs or charging order",
		}
	case RecoveryDebtAgency:
		return []string{
			"Select a registered UK debt collection agency",
			"Expected commission: 15-25% of the recovered amount",
			"Agency sends a formal demand letter with 14-day notice",
			"Intensive collection period of 60-90 days",
			"If unsuccessful, the agency may recommend court or write-off",
		}
	case RecoveryWriteOff:
		return []string{
			"Send a final demand letter",
			"Record as bad debt for tax purposes",
			"Consider selling the debt to a recovery company (10-20% of value)",
			"Focus effort on higher-value debts",
		}
	default: // continue_internal
		return []string{
			"Send a formal Letter Before Action",
			"Make a final phone call attempt",
			"Offer a payment plan or settlement discount",
			"Re-evaluate escalation if no response after 14 days",
			"Document all communication for a potential court case",
		}
	}
}
