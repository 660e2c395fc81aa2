package collections

import (
	"testing"
	"time"

	"github.com/recouphq/collections_backend/models"
)

func TestLevelForDaysOverdue_Thresholds(t *testing.T) {
	cases := []struct {
		days     int
		expected models.EscalationLevel
	}{
		{0, models.EscalationLevelNone},
		{4, models.EscalationLevelNone},
		{5, models.EscalationLevelGentle},
		{14, models.EscalationLevelGentle},
		{15, models.EscalationLevelFirm},
		{29, models.EscalationLevelFirm},
		{30, models.EscalationLevelFinal},
		{59, models.EscalationLevelFinal},
		{60, models.EscalationLevelAgency},
		{365, models.EscalationLevelAgency},
	}
	for _, tc := range cases {
		if got := LevelForDaysOverdue(tc.days); got != tc.expected {
			t.Fatalf("LevelForDaysOverdue(%d) expected %s, got %s", tc.days, tc.expected, got)
		}
	}
}

func TestEvaluate_AdvancesOneStepAndIsIdempotent(t *testing.T) {
	m := NewMachine(false)
	now := time.Now().UTC()
	state := &models.EscalationState{CurrentLevel: models.EscalationLevelNone}

	ev := m.Evaluate(state, 10, now)
	if !ev.ShouldTransition || ev.NextLevel != models.EscalationLevelGentle {
		t.Fatalf("expected transition none->gentle, got transition=%v next=%s", ev.ShouldTransition, ev.NextLevel)
	}
	if !ev.SendReminder {
		t.Fatalf("expected a reminder on transition")
	}

	// Apply and re-evaluate with the same inputs: no second decision.
	state.CurrentLevel = ev.NextLevel
	ev = m.Evaluate(state, 10, now)
	if ev.ShouldTransition {
		t.Fatalf("re-evaluation at gentle/10 days should not transition again, got next=%s", ev.NextLevel)
	}
}

func TestEvaluate_StepwiseCatchesUpOneLevelPerSweep(t *testing.T) {
	m := NewMachine(false)
	now := time.Now().UTC()
	state := &models.EscalationState{CurrentLevel: models.EscalationLevelNone}

	// 65 days overdue implies agency, but the default policy walks each stage.
	expected := []models.EscalationLevel{
		models.EscalationLevelGentle,
		models.EscalationLevelFirm,
		models.EscalationLevelFinal,
		models.EscalationLevelAgency,
	}
	for _, want := range expected {
		ev := m.Evaluate(state, 65, now)
		if !ev.ShouldTransition || ev.NextLevel != want {
			t.Fatalf("expected step to %s from %s, got transition=%v next=%s", want, state.CurrentLevel, ev.ShouldTransition, ev.NextLevel)
		}
		if want == models.EscalationLevelAgency && !ev.AgencyHandoff {
			t.Fatalf("expected agency handoff on final step")
		}
		state.CurrentLevel = ev.NextLevel
	}

	// Agency is terminal for automatic operation.
	ev := m.Evaluate(state, 365, now)
	if ev.ShouldTransition {
		t.Fatalf("agency must be terminal, got transition to %s", ev.NextLevel)
	}
}

func TestEvaluate_JumpToTargetSkipsIntermediateStages(t *testing.T) {
	m := NewMachine(true)
	state := &models.EscalationState{CurrentLevel: models.EscalationLevelNone}

	ev := m.Evaluate(state, 65, time.Now().UTC())
	if !ev.ShouldTransition || ev.NextLevel != models.EscalationLevelAgency {
		t.Fatalf("jump policy expected none->agency, got transition=%v next=%s", ev.ShouldTransition, ev.NextLevel)
	}
	if !ev.AgencyHandoff {
		t.Fatalf("expected agency handoff when jumping to agency")
	}
}

func TestEvaluate_PausedInvoicesAreSkipped(t *testing.T) {
	m := NewMachine(false)
	now := time.Now().UTC()
	until := now.Add(24 * time.Hour)
	state := &models.EscalationState{
		CurrentLevel: models.EscalationLevelGentle,
		IsPaused:     true,
		PauseUntil:   &until,
	}

	ev := m.Evaluate(state, 90, now)
	if ev.ShouldTransition || ev.AutoResume || ev.SendReminder {
		t.Fatalf("paused invoice must be skipped entirely, got %+v", ev)
	}

	// Open-ended pause (nil until) also skips.
	state.PauseUntil = nil
	ev = m.Evaluate(state, 90, now)
	if ev.ShouldTransition || ev.AutoResume {
		t.Fatalf("open-ended pause must be skipped, got %+v", ev)
	}
}

func TestEvaluate_ExpiredPauseAutoResumes(t *testing.T) {
	m := NewMachine(false)
	now := time.Now().UTC()
	until := now.Add(-time.Hour)
	state := &models.EscalationState{
		CurrentLevel: models.EscalationLevelGentle,
		IsPaused:     true,
		PauseUntil:   &until,
	}

	ev := m.Evaluate(state, 20, now)
	if !ev.AutoResume {
		t.Fatalf("expected auto-resume after pause_until elapsed")
	}
	// Resumes at the pre-pause level, then advances normally.
	if !ev.ShouldTransition || ev.NextLevel != models.EscalationLevelFirm {
		t.Fatalf("expected gentle->firm after auto-resume at 20 days, got transition=%v next=%s", ev.ShouldTransition, ev.NextLevel)
	}
}

func TestNextDue_Anchors(t *testing.T) {
	due := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	next := NextDueFromDueDate(models.EscalationLevelNone, due)
	if next == nil || !next.Equal(due.AddDate(0, 0, GentleThresholdDays)) {
		t.Fatalf("next due after none should be due+%dd, got %v", GentleThresholdDays, next)
	}
	next = NextDueFromDueDate(models.EscalationLevelFinal, due)
	if next == nil || !next.Equal(due.AddDate(0, 0, AgencyThresholdDays)) {
		t.Fatalf("next due after final should be due+%dd, got %v", AgencyThresholdDays, next)
	}
	if NextDueFromDueDate(models.EscalationLevelAgency, due) != nil {
		t.Fatalf("agency has no next due")
	}

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	next = NextDueFromNow(models.EscalationLevelFirm, now)
	// firm->final gap is 30-15 = 15 days.
	if next == nil || !next.Equal(now.AddDate(0, 0, FinalThresholdDays-FirmThresholdDays)) {
		t.Fatalf("resume at firm should re-arm %dd out, got %v", FinalThresholdDays-FirmThresholdDays, next)
	}
	if NextDueFromNow(models.EscalationLevelAgency, now) != nil {
		t.Fatalf("agency has no next due after resume")
	}
}
