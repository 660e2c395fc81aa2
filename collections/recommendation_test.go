package collections

import "testing"

func boolPtr(b bool) *bool { return &b }

func scoreOf(rec RecoveryRecommendation, option string) int {
	for _, r := range rec.Ranked {
		if r.Option == option {
			return r.Score
		}
	}
	return -1
}

func TestRecommend_HighValueBusinessDebtGoesToCourt(t *testing.T) {
	rec := Recommend(RecommendationInput{
		InvoiceAmount:      5000_00,
		DaysOverdue:        60,
		DebtorType:         DebtorTypeBusiness,
		PreviousAttempts:   5,
		RelationshipValue:  RelationshipLow,
		HasWrittenContract: true,
		HasProofOfDelivery: true,
		DebtorHasAssets:    boolPtr(true),
	})

	if rec.PrimaryOption != RecoveryCountyCourt {
		t.Fatalf("expected %s, got %s (ranked %+v)", RecoveryCountyCourt, rec.PrimaryOption, rec.Ranked)
	}
	if got := scoreOf(rec, RecoveryCountyCourt); got != 200 {
		t.Fatalf("court score expected 200, got %d", got)
	}
	if got := scoreOf(rec, RecoveryDebtAgency); got != 110 {
		t.Fatalf("agency score expected 110, got %d", got)
	}
	if rec.Confidence != 95 {
		t.Fatalf("confidence caps at 95, got %d", rec.Confidence)
	}
	if rec.Costs.CountyCourtFee != 205_00 {
		t.Fatalf("court fee for £5000 expected £205, got %d", rec.Costs.CountyCourtFee)
	}
}

func TestRecommend_RecentDebtStaysInternal(t *testing.T) {
	rec := Recommend(RecommendationInput{
		InvoiceAmount:    2000_00,
		DaysOverdue:      20,
		PreviousAttempts: 1,
	})

	if rec.PrimaryOption != RecoveryContinueInternal {
		t.Fatalf("expected %s, got %s (ranked %+v)", RecoveryContinueInternal, rec.PrimaryOption, rec.Ranked)
	}
	if got := scoreOf(rec, RecoveryContinueInternal); got != 85 {
		t.Fatalf("continue score expected 85, got %d", got)
	}
	if rec.Confidence != 85 {
		t.Fatalf("confidence expected 85, got %d", rec.Confidence)
	}
}

func TestRecommend_SmallOldDebtWithoutAssetsIsWrittenOff(t *testing.T) {
	rec := Recommend(RecommendationInput{
		InvoiceAmount:    300_00,
		DaysOverdue:      120,
		PreviousAttempts: 10,
		DebtorHasAssets:  boolPtr(false),
	})

	if rec.PrimaryOption != RecoveryWriteOff {
		t.Fatalf("expected %s, got %s (ranked %+v)", RecoveryWriteOff, rec.PrimaryOption, rec.Ranked)
	}
	if got := scoreOf(rec, RecoveryWriteOff); got != 80 {
		t.Fatalf("write_off score expected 80, got %d", got)
	}
	if got := scoreOf(rec, RecoveryDebtAgency); got != 70 {
		t.Fatalf("agency score expected 70, got %d", got)
	}
	if len(rec.Warnings) == 0 {
		t.Fatalf("small debt without assets should carry warnings")
	}
}

func TestRecommend_DisputedDebtSuppressesExternalRoutes(t *testing.T) {
	undisputed := Recommend(RecommendationInput{
		InvoiceAmount:    3000_00,
		DaysOverdue:      70,
		DebtorType:       DebtorTypeBusiness,
		PreviousAttempts: 4,
	})
	disputed := Recommend(RecommendationInput{
		InvoiceAmount:    3000_00,
		DaysOverdue:      70,
		IsDisputedDebt:   true,
		DebtorType:       DebtorTypeBusiness,
		PreviousAttempts: 4,
	})

	// The dispute swings 60+ points away from court and agency each.
	if scoreOf(disputed, RecoveryCountyCourt) >= scoreOf(undisputed, RecoveryCountyCourt) {
		t.Fatalf("dispute must lower the court score: clear=%d disputed=%d",
			scoreOf(undisputed, RecoveryCountyCourt), scoreOf(disputed, RecoveryCountyCourt))
	}
	if scoreOf(disputed, RecoveryContinueInternal) <= scoreOf(undisputed, RecoveryContinueInternal) {
		t.Fatalf("dispute must raise the continue score")
	}
}

func TestRecommend_TieBreaksLeastAggressiveFirst(t *testing.T) {
	ranked := rankOptions(map[string]int{
		RecoveryContinueInternal: 50,
		RecoveryWriteOff:         50,
		RecoveryDebtAgency:       50,
		RecoveryCountyCourt:      50,
	})
	expected := []string{RecoveryContinueInternal, RecoveryWriteOff, RecoveryDebtAgency, RecoveryCountyCourt}
	for i, want := range expected {
		if ranked[i].Option != want {
			t.Fatalf("tie position %d expected %s, got %s", i, want, ranked[i].Option)
		}
	}
}

func TestRecommend_ConfidenceStaysInBounds(t *testing.T) {
	inputs := []RecommendationInput{
		{InvoiceAmount: 100_00, DaysOverdue: 1},
		{InvoiceAmount: 100000_00, DaysOverdue: 400, PreviousAttempts: 20, DebtorType: DebtorTypeBusiness},
		{InvoiceAmount: 50_00, DaysOverdue: 0, IsDisputedDebt: true},
	}
	for i, in := range inputs {
		rec := Recommend(in)
		if rec.Confidence < 50 || rec.Confidence > 95 {
			t.Fatalf("case %d: confidence out of bounds: %d", i, rec.Confidence)
		}
	}
}

func TestCourtFee_Bands(t *testing.T) {
	cases := []struct {
		amountMinor int64
		expected    int64
	}{
		{250_00, 35_00},
		{300_00, 35_00},
		{450_00, 50_00},
		{1000_00, 70_00},
		{1200_00, 80_00},
		{2500_00, 115_00},
		{5000_00, 205_00},
		{9999_00, 455_00},
		{20000_00, 1000_00},   // 5% of £20k
		{500000_00, 10000_00}, // capped at £10k
	}
	for _, tc := range cases {
		if got := CourtFee(tc.amountMinor); got != tc.expected {
			t.Fatalf("CourtFee(%d) expected %d, got %d", tc.amountMinor, tc.expected, got)
		}
	}
}

func TestAgencyCommission_Band(t *testing.T) {
	min, max := AgencyCommission(1000_00)
	if min != 150_00 || max != 250_00 {
		t.Fatalf("commission on £1000 expected £150-£250, got %d-%d", min, max)
	}
}
