// Package metrics регистрирует счётчики Prometheus для ключевых операций ядра.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TrialCreations считает созданные trial-аккаунты.
	TrialCreations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "account_trial_creations_total",
		Help: "Number of anonymous trial accounts created.",
	})

	// Migrations считает миграции trial-аккаунтов в зарегистрированные.
	Migrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "account_migrations_total",
		Help: "Number of trial accounts migrated to registered accounts.",
	})

	// WebhookEvents считает обработанные webhook-события по результату.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_webhook_events_total",
		Help: "Number of billing webhook deliveries by result.",
	}, []string{"result"})

	// Restores считает восстановления аккаунтов в льготном периоде.
	Restores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "account_restores_total",
		Help: "Number of soft-deleted accounts restored within the grace window.",
	})
)
