package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collections_sweep_runs_total",
		Help: "Escalation sweep runs by outcome (completed, lock_busy, error).",
	}, []string{"outcome"})

	sweepInvoicesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collections_sweep_invoices_total",
		Help: "Invoices handled by the escalation sweep, by result.",
	}, []string{"result"})

	webhookRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collections_webhook_retries_total",
		Help: "Webhook redelivery attempts by result (delivered, rescheduled, dead).",
	}, []string{"result"})

	recommendationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collections_recommendations_total",
		Help: "Recovery recommendations computed, by primary option.",
	}, []string{"option"})
)
