package config

import (
	"os"
	"strings"
)

// EscalationJumpToTarget switches the state machine from step-wise advancement
// (one level per sweep, the default) to jumping directly to the level implied
// by days overdue. Step-wise keeps the timeline complete when multiple
// thresholds were crossed between sweeps.
//
// Set via env:
// - ESCALATION_JUMP_TO_TARGET=true
func EscalationJumpToTarget() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("ESCALATION_JUMP_TO_TARGET")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// EscalationBackgroundSweep controls the in-process background sweep loop.
// Intended for local/dev environments without Cloud Scheduler; production
// should trigger POST /api/collections/sweep from cron and set this to false.
//
// Set via env:
// - ESCALATION_BACKGROUND_SWEEP=false
func EscalationBackgroundSweep() bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv("ESCALATION_BACKGROUND_SWEEP")))
	if val == "true" {
		return true
	}
	if val == "false" {
		return false
	}
	// Default: run as a safety-net even when an external scheduler is configured.
	// Sweeps are idempotent and lock-guarded, so an extra trigger is harmless.
	return true
}
