package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/recouphq/collections_backend/appctx"
	"github.com/recouphq/collections_backend/collections"
	"github.com/recouphq/collections_backend/config"
	"github.com/recouphq/collections_backend/models"
	"github.com/recouphq/collections_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var minorUnitsPerPound = decimal.NewFromInt(100)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("futuretime", func(fl validator.FieldLevel) bool {
			t, ok := fl.Field().Interface().(time.Time)
			return ok && t.After(time.Now().UTC())
		})
	}
}

// writeDomainError maps the error taxonomy onto HTTP statuses with stable
// codes. Internal details never leak; they are logged, not returned.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "record not found"})
	case errors.Is(err, utils.ErrorForbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": "not allowed"})
	case errors.Is(err, utils.ErrorInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "error": err.Error()})
	default:
		config.GetLogger().WithField("path", c.Request.URL.Path).Error("request failed: " + err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal", "error": "internal error"})
	}
}

func invoiceIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("invoiceId"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "error": "invalid invoice id"})
		return 0, false
	}
	return id, true
}

func stateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		invoiceId, ok := invoiceIdParam(c)
		if !ok {
			return
		}
		state, err := app().Service.State(c.Request.Context(), invoiceId)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

func timelineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		invoiceId, ok := invoiceIdParam(c)
		if !ok {
			return
		}
		events, err := app().Service.Timeline(c.Request.Context(), invoiceId)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"invoice_id": invoiceId, "events": events})
	}
}

type pauseRequest struct {
	Reason string     `json:"reason" binding:"required,max=1000"`
	Until  *time.Time `json:"until" binding:"omitempty,futuretime"`
}

func pauseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		invoiceId, ok := invoiceIdParam(c)
		if !ok {
			return
		}
		var req pauseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "error": err.Error()})
			return
		}
		state, err := app().Service.Pause(c.Request.Context(), invoiceId, req.Reason, req.Until)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

type resumeRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

func resumeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		invoiceId, ok := invoiceIdParam(c)
		if !ok {
			return
		}
		var req resumeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "error": "reason is required"})
			return
		}
		state, err := app().Service.Resume(c.Request.Context(), invoiceId, req.Reason)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

type escalateRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

func escalateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		invoiceId, ok := invoiceIdParam(c)
		if !ok {
			return
		}
		var req escalateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "error": "reason is required"})
			return
		}
		state, err := app().Service.EscalateOnce(c.Request.Context(), invoiceId, req.Reason)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

func recommendHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req collections.RecommendationInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "error": err.Error()})
			return
		}

		rec := collections.Recommend(req)
		recommendationsTotal.WithLabelValues(rec.PrimaryOption).Inc()
		c.JSON(http.StatusOK, rec)
	}
}

func invoiceRecommendationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		invoiceId, ok := invoiceIdParam(c)
		if !ok {
			return
		}
		rec, err := app().Service.Recommendation(c.Request.Context(), invoiceId)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		recommendationsTotal.WithLabelValues(rec.PrimaryOption).Inc()
		c.JSON(http.StatusOK, rec)
	}
}

func interestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		invoiceId, ok := invoiceIdParam(c)
		if !ok {
			return
		}
		invoice, err := app().Service.InvoiceForOwner(c.Request.Context(), invoiceId)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		// Interest is meaningful before the first sweep creates a state row.
		state, serr := app().Service.State(c.Request.Context(), invoiceId)
		if serr != nil && !errors.Is(serr, utils.ErrorRecordNotFound) {
			writeDomainError(c, serr)
			return
		}

		amountMinor := invoice.AmountDue.Mul(minorUnitsPerPound).Round(0).IntPart()
		breakdown := collections.CalculateLateInterest(amountMinor, invoice.DaysOverdue(time.Now().UTC()))
		resp := gin.H{"invoice_id": invoiceId, "interest": breakdown}
		if state != nil {
			resp["current_level"] = state.CurrentLevel
		}
		c.JSON(http.StatusOK, resp)
	}
}

func handoffURLHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		invoiceId, ok := invoiceIdParam(c)
		if !ok {
			return
		}
		state, err := app().Service.State(c.Request.Context(), invoiceId)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		if state.CurrentLevel != models.EscalationLevelAgency {
			writeDomainError(c, fmt.Errorf("%w: invoice has not been handed off to an agency", utils.ErrorInvalidRequest))
			return
		}

		url, err := app().Packs.SignedDownloadURL(c.Request.Context(), state.BusinessId, invoiceId, 15*time.Minute)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"invoice_id": invoiceId, "url": url, "expires_in_seconds": 900})
	}
}

func sweepHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "collections.sweep", trace.WithSpanKind(trace.SpanKindInternal))
		defer span.End()

		result, err := app().Sweeper.RunSweep(ctx)
		if err != nil {
			sweepRunsTotal.WithLabelValues("error").Inc()
			writeDomainError(c, err)
			return
		}
		if result.LockBusy {
			sweepRunsTotal.WithLabelValues("lock_busy").Inc()
			c.JSON(http.StatusOK, result)
			return
		}
		sweepRunsTotal.WithLabelValues("completed").Inc()
		sweepInvoicesTotal.WithLabelValues("succeeded").Add(float64(result.Succeeded))
		sweepInvoicesTotal.WithLabelValues("failed").Add(float64(result.Failed))
		c.JSON(http.StatusOK, result)
	}
}

func retryWebhooksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "collections.retry-webhooks", trace.WithSpanKind(trace.SpanKindInternal))
		defer span.End()

		result, err := app().RetryWorker.RunRetry(ctx)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		webhookRetriesTotal.WithLabelValues("delivered").Add(float64(result.Delivered))
		webhookRetriesTotal.WithLabelValues("rescheduled").Add(float64(result.Rescheduled))
		webhookRetriesTotal.WithLabelValues("dead").Add(float64(result.Dead))
		c.JSON(http.StatusOK, result)
	}
}

func requireAdmin(c *gin.Context) bool {
	if isAdmin, _ := appctx.GetBool(c.Request.Context(), appctx.ContextKeyIsAdmin); !isAdmin {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "error": "unauthorized"})
		return false
	}
	return true
}

func escalationQueueHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		members, err := utils.GetEscalationQueue()
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"invoice_ids": members})
	}
}

// deadWebhookView decodes the stored payload so the review UI can show which
// reminder failed without parsing the raw blob.
type deadWebhookView struct {
	models.FailedWebhook
	Reminder *collections.ReminderPayload `json:"reminder,omitempty"`
}

func deadWebhooksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		rows, err := models.GetDeadWebhooks(c.Request.Context(), config.GetDB())
		if err != nil {
			writeDomainError(c, err)
			return
		}
		views := make([]deadWebhookView, 0, len(rows))
		for _, row := range rows {
			view := deadWebhookView{FailedWebhook: row}
			var payload collections.ReminderPayload
			if uerr := utils.UnmarshalFromJSON(row.Payload, &payload); uerr == nil {
				view.Reminder = &payload
			}
			views = append(views, view)
		}
		c.JSON(http.StatusOK, gin.H{"dead_webhooks": views})
	}
}

type requeueWebhookRequest struct {
	WebhookId int `json:"webhook_id" binding:"required,gt=0"`
}

func requeueWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		var req requeueWebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "error": "webhook_id is required"})
			return
		}
		if err := models.RequeueDeadWebhook(c.Request.Context(), config.GetDB(), req.WebhookId); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				writeDomainError(c, utils.ErrorRecordNotFound)
				return
			}
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"webhook_id": req.WebhookId, "status": models.WebhookStatusPending})
	}
}
