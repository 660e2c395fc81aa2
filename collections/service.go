package collections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/recouphq/collections_backend/appctx"
	"github.com/recouphq/collections_backend/models"
	"github.com/recouphq/collections_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Service owns the read/write operations on escalation state: pause, resume,
// manual escalate, and the transition persistence the sweeper shares. All
// collaborators are injected; nothing here reaches for globals.
type Service struct {
	DB      *gorm.DB
	Logger  *logrus.Logger
	Machine *Machine
}

func NewService(db *gorm.DB, logger *logrus.Logger, machine *Machine) *Service {
	return &Service{DB: db, Logger: logger, Machine: machine}
}

// loadOwnedInvoice fetches the invoice regardless of tenant scope, then
// enforces ownership explicitly so callers can tell Forbidden from NotFound.
func (s *Service) loadOwnedInvoice(ctx context.Context, invoiceId int) (*models.Invoice, error) {
	sysCtx := appctx.Set(ctx, appctx.ContextKeySkipTenantScope, true)
	invoice, err := models.GetInvoice(sysCtx, s.DB, invoiceId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	if isAdmin, _ := appctx.GetBool(ctx, appctx.ContextKeyIsAdmin); isAdmin {
		return invoice, nil
	}
	if skip, _ := appctx.GetBool(ctx, appctx.ContextKeySkipTenantScope); skip {
		return invoice, nil
	}
	if businessId, ok := utils.GetBusinessIdFromContext(ctx); ok && businessId != "" {
		if invoice.BusinessId != businessId {
			return nil, utils.ErrorForbidden
		}
	}
	return invoice, nil
}

// InvoiceForOwner exposes the ownership-checked invoice load for handlers
// that need invoice fields directly (interest, exports).
func (s *Service) InvoiceForOwner(ctx context.Context, invoiceId int) (*models.Invoice, error) {
	return s.loadOwnedInvoice(ctx, invoiceId)
}

func (s *Service) State(ctx context.Context, invoiceId int) (*models.EscalationState, error) {
	invoice, err := s.loadOwnedInvoice(ctx, invoiceId)
	if err != nil {
		return nil, err
	}
	state, err := models.GetEscalationState(ctx, s.DB, invoice.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return state, nil
}

func (s *Service) Timeline(ctx context.Context, invoiceId int) ([]models.EscalationTimelineEvent, error) {
	invoice, err := s.loadOwnedInvoice(ctx, invoiceId)
	if err != nil {
		return nil, err
	}
	return models.GetEscalationTimeline(ctx, s.DB, invoice.ID)
}

// Pause suspends all automatic escalation for the invoice. With a nil until,
// collections stay stopped until an explicit resume.
func (s *Service) Pause(ctx context.Context, invoiceId int, reason string, until *time.Time) (*models.EscalationState, error) {
	invoice, err := s.loadOwnedInvoice(ctx, invoiceId)
	if err != nil {
		return nil, err
	}
	state, err := models.GetEscalationState(ctx, s.DB, invoice.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if state.IsPaused {
		return nil, fmt.Errorf("%w: escalation already paused", utils.ErrorInvalidRequest)
	}
	if until != nil && !until.After(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: pause until must be in the future", utils.ErrorInvalidRequest)
	}

	now := time.Now().UTC()
	metadata, _ := utils.MarshalToJSON(map[string]interface{}{
		"reason": reason,
		"until":  until,
	})

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.EscalationState{}).
			Where("id = ?", state.ID).
			Updates(map[string]interface{}{
				"is_paused":    true,
				"pause_reason": reason,
				"paused_at":    &now,
				"pause_until":  until,
			}).Error; err != nil {
			return err
		}
		return s.recordEvent(ctx, tx, invoice, models.EscalationEventPaused, state.CurrentLevel, []byte(metadata), now)
	})
	if err != nil {
		return nil, err
	}

	// Best-effort: drop scheduled reminder keys so nothing fires mid-pause.
	if derr := utils.DequeueEscalation(invoice.ID); derr != nil && s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"module":     "collections",
			"invoice_id": invoice.ID,
		}).Warn("failed to clear scheduled reminder keys: " + derr.Error())
	}

	return models.GetEscalationState(ctx, s.DB, invoice.ID)
}

// Resume lifts a pause. The invoice re-engages at the level it held before
// pausing; the next escalation time restarts from now.
func (s *Service) Resume(ctx context.Context, invoiceId int, reason string) (*models.EscalationState, error) {
	invoice, err := s.loadOwnedInvoice(ctx, invoiceId)
	if err != nil {
		return nil, err
	}
	state, err := models.GetEscalationState(ctx, s.DB, invoice.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if !state.IsPaused {
		return nil, fmt.Errorf("%w: escalation is not paused", utils.ErrorInvalidRequest)
	}

	now := time.Now().UTC()
	nextDue := NextDueFromNow(state.CurrentLevel, now)
	metadata, _ := utils.MarshalToJSON(map[string]interface{}{
		"reason": reason,
	})

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.EscalationState{}).
			Where("id = ?", state.ID).
			Updates(map[string]interface{}{
				"is_paused":           false,
				"pause_reason":        "",
				"paused_at":           nil,
				"pause_until":         nil,
				"next_escalation_due": nextDue,
			}).Error; err != nil {
			return err
		}
		return s.recordEvent(ctx, tx, invoice, models.EscalationEventResumed, state.CurrentLevel, []byte(metadata), now)
	})
	if err != nil {
		return nil, err
	}

	if qerr := utils.EnqueueEscalation(invoice.ID); qerr != nil && s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"module":     "collections",
			"invoice_id": invoice.ID,
		}).Warn("failed to re-enqueue escalation: " + qerr.Error())
	}

	return models.GetEscalationState(ctx, s.DB, invoice.ID)
}

// EscalateOnce applies a single manual escalation step, outside the sweep.
func (s *Service) EscalateOnce(ctx context.Context, invoiceId int, reason string) (*models.EscalationState, error) {
	invoice, err := s.loadOwnedInvoice(ctx, invoiceId)
	if err != nil {
		return nil, err
	}
	state, err := models.GetOrCreateEscalationState(ctx, s.DB, invoice)
	if err != nil {
		return nil, err
	}
	if state.IsPaused {
		return nil, fmt.Errorf("%w: escalation is paused", utils.ErrorInvalidRequest)
	}
	if state.CurrentLevel == models.EscalationLevelAgency {
		return nil, fmt.Errorf("%w: already at agency stage", utils.ErrorInvalidRequest)
	}

	now := time.Now().UTC()
	next := state.CurrentLevel.Next()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.ApplyTransition(ctx, tx, invoice, state, next, now, map[string]interface{}{
			"manual": true,
			"reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return models.GetEscalationState(ctx, s.DB, invoice.ID)
}

// ApplyTransition persists a stage advance inside the caller's transaction:
// state update, one timeline event, one outbox event. Exactly one of each.
func (s *Service) ApplyTransition(ctx context.Context, tx *gorm.DB, invoice *models.Invoice, state *models.EscalationState, next models.EscalationLevel, now time.Time, extra map[string]interface{}) error {
	if next.Rank() <= state.CurrentLevel.Rank() {
		return fmt.Errorf("%w: cannot move %s -> %s", utils.ErrorInvalidRequest, state.CurrentLevel, next)
	}

	nextDue := NextDueFromDueDate(next, invoice.DueDate)
	if err := tx.WithContext(ctx).Model(&models.EscalationState{}).
		Where("id = ?", state.ID).
		Updates(map[string]interface{}{
			"current_level":       next,
			"last_escalated_at":   &now,
			"next_escalation_due": nextDue,
		}).Error; err != nil {
		return err
	}

	meta := map[string]interface{}{
		"from": state.CurrentLevel,
		"to":   next,
	}
	for k, v := range extra {
		meta[k] = v
	}
	metadata, _ := utils.MarshalToJSON(meta)

	if err := s.recordEvent(ctx, tx, invoice, models.EscalationEventStageAdvanced, next, []byte(metadata), now); err != nil {
		return err
	}

	state.CurrentLevel = next
	state.LastEscalatedAt = &now
	state.NextEscalationDue = nextDue
	return nil
}

// ClearPauseAfterExpiry applies the auto-resume decided by the state machine:
// pause_until elapsed, so the pause fields are cleared at the pre-pause level.
func (s *Service) ClearPauseAfterExpiry(ctx context.Context, tx *gorm.DB, invoice *models.Invoice, state *models.EscalationState, now time.Time) error {
	metadata, _ := utils.MarshalToJSON(map[string]interface{}{
		"auto": true,
	})
	if err := tx.WithContext(ctx).Model(&models.EscalationState{}).
		Where("id = ?", state.ID).
		Updates(map[string]interface{}{
			"is_paused":    false,
			"pause_reason": "",
			"paused_at":    nil,
			"pause_until":  nil,
		}).Error; err != nil {
		return err
	}
	if err := s.recordEvent(ctx, tx, invoice, models.EscalationEventResumed, state.CurrentLevel, []byte(metadata), now); err != nil {
		return err
	}
	state.IsPaused = false
	state.PausedAt = nil
	state.PauseUntil = nil
	state.PauseReason = ""
	return nil
}

// Recommendation scores the stored invoice and returns the ranked recovery
// options. Results are cached in Redis; the cache is cleared whenever a new
// reminder lands because the attempt count feeds the scoring.
func (s *Service) Recommendation(ctx context.Context, invoiceId int) (*RecoveryRecommendation, error) {
	invoice, err := s.loadOwnedInvoice(ctx, invoiceId)
	if err != nil {
		return nil, err
	}

	var cached RecoveryRecommendation
	if found, cerr := utils.GetCachedRecommendation(invoice.BusinessId, invoice.ID, &cached); cerr == nil && found {
		return &cached, nil
	}

	timeline, err := models.GetEscalationTimeline(ctx, s.DB, invoice.ID)
	if err != nil {
		return nil, err
	}
	rec := Recommend(RecommendationInputForInvoice(invoice, timeline, time.Now().UTC()))

	if cerr := utils.CacheRecommendation(invoice.BusinessId, invoice.ID, rec); cerr != nil && s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"module":     "collections",
			"invoice_id": invoice.ID,
		}).Warn("failed to cache recommendation: " + cerr.Error())
	}
	return &rec, nil
}

// RecordReminderSent appends the reminder_sent timeline + outbox events after
// a successful dispatch.
func (s *Service) RecordReminderSent(ctx context.Context, invoice *models.Invoice, level models.EscalationLevel, now time.Time) error {
	metadata, _ := utils.MarshalToJSON(map[string]interface{}{
		"level": level,
	})
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.recordEvent(ctx, tx, invoice, models.EscalationEventReminderSent, level, []byte(metadata), now)
	})
	if err != nil {
		return err
	}
	// The attempt count changed, so the cached scoring is stale.
	_ = utils.ClearCachedRecommendation(invoice.BusinessId, invoice.ID)
	return nil
}

// recordEvent appends the timeline entry and enqueues the matching outbox row
// in one shot. Timeline stays immutable; publish bookkeeping lives in outbox.
func (s *Service) recordEvent(ctx context.Context, tx *gorm.DB, invoice *models.Invoice, eventType models.EscalationEventType, level models.EscalationLevel, metadata []byte, now time.Time) error {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	if err := models.AppendTimelineEvent(ctx, tx, &models.EscalationTimelineEvent{
		BusinessId: invoice.BusinessId,
		InvoiceId:  invoice.ID,
		EventType:  eventType,
		Level:      level,
		Metadata:   metadata,
	}); err != nil {
		return err
	}
	return models.EnqueueEscalationEvent(ctx, tx, &models.EscalationEventRecord{
		BusinessId:    invoice.BusinessId,
		InvoiceId:     invoice.ID,
		EventType:     eventType,
		Level:         level,
		OccurredAt:    now,
		Metadata:      metadata,
		CorrelationId: correlationId,
	})
}
