package collections

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/recouphq/collections_backend/config"
	"github.com/recouphq/collections_backend/models"
	"github.com/recouphq/collections_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AgencyHandoffHandler prepares the handoff pack when an invoice reaches the
// agency stage. Failures are logged, not fatal: the stage transition stands.
type AgencyHandoffHandler interface {
	Handoff(ctx context.Context, invoice *models.Invoice, state *models.EscalationState) error
}

// SweepResult summarizes one batch escalation run.
type SweepResult struct {
	Processed int  `json:"processed"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	LockBusy  bool `json:"lock_busy"`
}

// Sweeper runs the batch escalation job: finds overdue unpaid invoices,
// evaluates each against the state machine and applies at most one transition
// per invoice per run. A distributed lock keeps concurrent triggers (Cloud
// Scheduler overlap, manual kicks) down to a single active sweep.
type Sweeper struct {
	DB      *gorm.DB
	Logger  *logrus.Logger
	Locker  LockProvider
	Service *Service
	Machine *Machine

	Notifier NotificationSender
	Handoff  AgencyHandoffHandler

	JobName           string
	LockTTL           time.Duration
	HeartbeatInterval time.Duration
	Now               func() time.Time
}

func NewSweeper(db *gorm.DB, logger *logrus.Logger, locker LockProvider, service *Service, machine *Machine, notifier NotificationSender, handoff AgencyHandoffHandler) *Sweeper {
	return &Sweeper{
		DB:                db,
		Logger:            logger,
		Locker:            locker,
		Service:           service,
		Machine:           machine,
		Notifier:          notifier,
		Handoff:           handoff,
		JobName:           "process-escalations",
		LockTTL:           2 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
		Now:               func() time.Time { return time.Now().UTC() },
	}
}

// RunSweep executes one sweep. When another instance holds the job lock it
// returns LockBusy with zero mutations and a nil error.
func (s *Sweeper) RunSweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	lock, err := s.Locker.Obtain(ctx, s.JobName, s.LockTTL)
	if errors.Is(err, ErrJobLockHeld) {
		s.Logger.WithField("job", s.JobName).Info("sweep already running elsewhere, skipping")
		result.LockBusy = true
		return result, nil
	}
	if err != nil {
		return result, err
	}
	defer func() {
		if rerr := lock.Release(context.Background()); rerr != nil {
			s.Logger.WithField("job", s.JobName).Warn("failed to release job lock: " + rerr.Error())
		}
	}()

	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go s.heartbeat(ctx, lock, heartbeatDone)

	correlationId := uuid.New().String()
	sysCtx := utils.SystemContext(ctx, correlationId)
	now := s.Now()

	invoices, err := models.GetOverdueUnpaidInvoices(sysCtx, s.DB, now)
	if err != nil {
		return result, err
	}

	for i := range invoices {
		invoice := &invoices[i]
		result.Processed++
		if err := s.processInvoice(sysCtx, invoice, now); err != nil {
			// One bad invoice never aborts the batch.
			result.Failed++
			config.LogError(s.Logger, "collections", "RunSweep", "escalation sweep failed for invoice", map[string]interface{}{
				"invoice_id":     invoice.ID,
				"business_id":    invoice.BusinessId,
				"correlation_id": correlationId,
			}, err)
			continue
		}
		result.Succeeded++
	}

	s.freezePaidInvoices(sysCtx)

	s.Logger.WithFields(logrus.Fields{
		"job":            s.JobName,
		"processed":      result.Processed,
		"succeeded":      result.Succeeded,
		"failed":         result.Failed,
		"correlation_id": correlationId,
	}).Info("escalation sweep finished")
	return result, nil
}

// freezePaidInvoices stops escalation for invoices billing has since marked
// paid: next_escalation_due goes NULL and the Redis queue entry is dropped.
// The state row stays for audit.
func (s *Sweeper) freezePaidInvoices(ctx context.Context) {
	states, err := models.GetStatesForPaidInvoices(ctx, s.DB)
	if err != nil {
		config.LogError(s.Logger, "collections", "freezePaidInvoices", "failed to list paid invoices still in collections", nil, err)
		return
	}
	for i := range states {
		if err := models.FreezeEscalationState(ctx, s.DB, states[i].InvoiceId); err != nil {
			config.LogError(s.Logger, "collections", "freezePaidInvoices", "failed to freeze escalation state", map[string]interface{}{
				"invoice_id": states[i].InvoiceId,
			}, err)
			continue
		}
		if derr := utils.DequeueEscalation(states[i].InvoiceId); derr != nil {
			s.Logger.WithField("invoice_id", states[i].InvoiceId).Warn("failed to dequeue paid invoice: " + derr.Error())
		}
		s.Logger.WithFields(logrus.Fields{
			"job":         s.JobName,
			"invoice_id":  states[i].InvoiceId,
			"business_id": states[i].BusinessId,
		}).Info("escalation frozen, invoice paid")
	}
}

// heartbeat extends the job lock while the sweep is running. If the process
// dies the unrefreshed lock expires and a later trigger takes over.
func (s *Sweeper) heartbeat(ctx context.Context, lock JobLock, done <-chan struct{}) {
	ticker := time.NewTicker(s.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Refresh(ctx, s.LockTTL); err != nil {
				s.Logger.WithField("job", s.JobName).Warn("job lock refresh failed: " + err.Error())
			}
		}
	}
}

// processInvoice applies the state machine decision for one invoice. The
// transition commits in its own transaction; reminder delivery happens after
// commit so a slow endpoint cannot hold row locks.
func (s *Sweeper) processInvoice(ctx context.Context, invoice *models.Invoice, now time.Time) error {
	var ev Evaluation
	var state *models.EscalationState

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		state, err = models.GetOrCreateEscalationState(ctx, tx, invoice)
		if err != nil {
			return err
		}

		ev = s.Machine.Evaluate(state, invoice.DaysOverdue(now), now)

		if ev.AutoResume {
			if err := s.Service.ClearPauseAfterExpiry(ctx, tx, invoice, state, now); err != nil {
				return err
			}
		}
		if !ev.ShouldTransition {
			return nil
		}
		if err := s.Service.ApplyTransition(ctx, tx, invoice, state, ev.NextLevel, now, nil); err != nil {
			return err
		}
		if ev.AgencyHandoff {
			return s.Service.recordEvent(ctx, tx, invoice, models.EscalationEventAgencyHandoff, ev.NextLevel, nil, now)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !ev.ShouldTransition {
		return nil
	}

	if qerr := utils.EnqueueEscalation(invoice.ID); qerr != nil {
		s.Logger.WithField("invoice_id", invoice.ID).Warn("failed to enqueue escalation: " + qerr.Error())
	}

	if ev.SendReminder && s.Notifier != nil {
		s.dispatchReminder(ctx, invoice, ev.NextLevel, now)
	}

	if ev.AgencyHandoff && s.Handoff != nil {
		if herr := s.Handoff.Handoff(ctx, invoice, state); herr != nil {
			s.Logger.WithFields(logrus.Fields{
				"invoice_id": invoice.ID,
				"error":      herr.Error(),
			}).Error("agency handoff pack failed")
		}
	}
	return nil
}

// dispatchReminder sends at most one reminder per invoice per level, guarded
// by the durable dispatch key. Delivery failures are absorbed: the webhook is
// already queued for retry and the stage transition has committed.
func (s *Sweeper) dispatchReminder(ctx context.Context, invoice *models.Invoice, level models.EscalationLevel, now time.Time) {
	skip, err := BeginReminderDispatch(s.DB.WithContext(ctx), invoice.BusinessId, invoice.ID, level)
	if err != nil {
		if !errors.Is(err, ErrReminderInProgress) {
			logError(s.Logger, "failed to begin reminder dispatch", err, invoice.ID)
		}
		return
	}
	if skip {
		return
	}

	if err := s.Notifier.SendReminder(ctx, invoice, level); err != nil {
		if merr := MarkReminderDispatchFailed(s.DB.WithContext(ctx), invoice.BusinessId, invoice.ID, level, err); merr != nil {
			logError(s.Logger, "failed to mark reminder dispatch failed", merr, invoice.ID)
		}
		if !errors.Is(err, utils.ErrorDeliveryFailed) {
			logError(s.Logger, "reminder dispatch failed", err, invoice.ID)
		}
		return
	}

	if merr := MarkReminderDispatchSucceeded(s.DB.WithContext(ctx), invoice.BusinessId, invoice.ID, level); merr != nil {
		logError(s.Logger, "failed to mark reminder dispatch succeeded", merr, invoice.ID)
	}
	if rerr := s.Service.RecordReminderSent(ctx, invoice, level, now); rerr != nil {
		logError(s.Logger, "failed to record reminder sent", rerr, invoice.ID)
	}
}
