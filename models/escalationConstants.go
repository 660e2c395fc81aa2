package models

// EscalationLevel is how aggressively an overdue invoice is being pursued.
// Levels are ordered; automatic transitions only ever move forward.
type EscalationLevel string

const (
	EscalationLevelNone   EscalationLevel = "none"
	EscalationLevelGentle EscalationLevel = "gentle"
	EscalationLevelFirm   EscalationLevel = "firm"
	EscalationLevelFinal  EscalationLevel = "final"
	EscalationLevelAgency EscalationLevel = "agency"
)

var escalationLevelRank = map[EscalationLevel]int{
	EscalationLevelNone:   0,
	EscalationLevelGentle: 1,
	EscalationLevelFirm:   2,
	EscalationLevelFinal:  3,
	EscalationLevelAgency: 4,
}

var escalationLevelOrder = []EscalationLevel{
	EscalationLevelNone,
	EscalationLevelGentle,
	EscalationLevelFirm,
	EscalationLevelFinal,
	EscalationLevelAgency,
}

// Rank returns the ordinal position of the level; unknown levels rank as none.
func (l EscalationLevel) Rank() int {
	return escalationLevelRank[l]
}

func (l EscalationLevel) IsValid() bool {
	_, ok := escalationLevelRank[l]
	return ok
}

// Next returns the level one step above l. Agency is terminal and returns itself.
func (l EscalationLevel) Next() EscalationLevel {
	r := l.Rank()
	if r >= len(escalationLevelOrder)-1 {
		return EscalationLevelAgency
	}
	return escalationLevelOrder[r+1]
}

// Timeline event types. Appended on every transition; never mutated.
type EscalationEventType string

const (
	EscalationEventStageAdvanced EscalationEventType = "stage_advanced"
	EscalationEventPaused        EscalationEventType = "paused"
	EscalationEventResumed       EscalationEventType = "resumed"
	EscalationEventAgencyHandoff EscalationEventType = "agency_handoff"
	EscalationEventReminderSent  EscalationEventType = "reminder_sent"
)

// Failed-webhook statuses for FailedWebhook.Status.
// Keep these as strings (DB values) for backwards compatibility.
const (
	WebhookStatusPending    = "PENDING"
	WebhookStatusProcessing = "PROCESSING"
	WebhookStatusDead       = "DEAD"
)

// Outbox publish statuses for EscalationEventRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// Reminder dispatch statuses for ReminderDispatchKey.Status.
const (
	ReminderDispatchStarted   = "STARTED"
	ReminderDispatchSucceeded = "SUCCEEDED"
	ReminderDispatchFailed    = "FAILED"
)
