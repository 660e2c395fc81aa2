package collections

import (
	"time"

	"github.com/recouphq/collections_backend/models"
)

// Stage thresholds in whole days overdue (inclusive lower bounds):
// none 0-4, gentle 5-14, firm 15-29, final 30-59, agency 60+.
const (
	GentleThresholdDays = 5
	FirmThresholdDays   = 15
	FinalThresholdDays  = 30
	AgencyThresholdDays = 60
)

var levelMinDays = map[models.EscalationLevel]int{
	models.EscalationLevelNone:   0,
	models.EscalationLevelGentle: GentleThresholdDays,
	models.EscalationLevelFirm:   FirmThresholdDays,
	models.EscalationLevelFinal:  FinalThresholdDays,
	models.EscalationLevelAgency: AgencyThresholdDays,
}

// LevelForDaysOverdue maps days overdue to the stage the invoice should be at.
func LevelForDaysOverdue(days int) models.EscalationLevel {
	switch {
	case days >= AgencyThresholdDays:
		return models.EscalationLevelAgency
	case days >= FinalThresholdDays:
		return models.EscalationLevelFinal
	case days >= FirmThresholdDays:
		return models.EscalationLevelFirm
	case days >= GentleThresholdDays:
		return models.EscalationLevelGentle
	default:
		return models.EscalationLevelNone
	}
}

// Machine is the pure escalation decision logic. It never touches storage;
// callers persist the Evaluation it returns.
type Machine struct {
	// JumpToTarget makes Evaluate move directly to the level implied by days
	// overdue instead of one level per sweep. Default policy is step-wise:
	// repeated sweeps catch an invoice up, and every intermediate stage gets
	// its own timeline entry and reminder.
	JumpToTarget bool
}

func NewMachine(jumpToTarget bool) *Machine {
	return &Machine{JumpToTarget: jumpToTarget}
}

// Evaluation is the decision for a single invoice in a single sweep.
type Evaluation struct {
	NextLevel        models.EscalationLevel
	ShouldTransition bool

	// AutoResume means pause_until has elapsed; the caller clears the pause
	// fields (resuming at the pre-pause level) before applying any transition.
	AutoResume bool

	SendReminder  bool
	AgencyHandoff bool
}

// Evaluate decides whether the invoice advances. It is deterministic: calling
// it twice with unchanged inputs yields the same single decision, so a worker
// that applies each evaluation at most once per sweep never double-escalates.
func (m *Machine) Evaluate(state *models.EscalationState, daysOverdue int, now time.Time) Evaluation {
	ev := Evaluation{NextLevel: state.CurrentLevel}

	if state.IsPaused {
		if state.PauseUntil == nil || now.Before(*state.PauseUntil) {
			// Paused invoices are skipped entirely, whatever the due date says.
			return ev
		}
		ev.AutoResume = true
	}

	// Agency is terminal for automatic operation; only manual pause/resume
	// can re-engage.
	if state.CurrentLevel == models.EscalationLevelAgency {
		return ev
	}

	target := LevelForDaysOverdue(daysOverdue)
	if target.Rank() <= state.CurrentLevel.Rank() {
		return ev
	}

	next := state.CurrentLevel.Next()
	if m.JumpToTarget {
		next = target
	}

	ev.NextLevel = next
	ev.ShouldTransition = true
	ev.SendReminder = true
	ev.AgencyHandoff = next == models.EscalationLevelAgency
	return ev
}

// NextDueFromDueDate returns when the level after `level` becomes due,
// anchored on the invoice due date. Nil for agency (terminal).
func NextDueFromDueDate(level models.EscalationLevel, dueDate time.Time) *time.Time {
	if level == models.EscalationLevelAgency {
		return nil
	}
	t := dueDate.AddDate(0, 0, levelMinDays[level.Next()])
	return &t
}

// NextDueFromNow recomputes the next escalation time after a resume: the gap
// between the current level and the next one, counted from now. Nil for agency.
func NextDueFromNow(level models.EscalationLevel, now time.Time) *time.Time {
	if level == models.EscalationLevelAgency {
		return nil
	}
	gap := levelMinDays[level.Next()] - levelMinDays[level]
	t := now.AddDate(0, 0, gap)
	return &t
}
