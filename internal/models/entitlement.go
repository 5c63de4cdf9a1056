package models

import "time"

// EntitlementState — каноническое состояние подписки, полученное у
// биллинг-провайдера. Никогда не строится из полей webhook-события.
type EntitlementState struct {
	Tier             string  // trial или paid
	Plan             *string // individual, professional, team
	BillingPeriod    *string // monthly или yearly
	CreditsRemaining *int    // nil для платных тарифов (безлимит)
	SubscriberRef    string  // Идентификатор подписчика у провайдера
	Platform         *string // ios, android, web
	ExpiresAt        *time.Time
}

// EntitlementSummary используется для формирования JSON-ответа после сверки.
type EntitlementSummary struct {
	Tier             string     `json:"tier"`
	Plan             *string    `json:"plan,omitempty"`
	BillingPeriod    *string    `json:"billing_period,omitempty"`
	CreditsRemaining *int       `json:"credits_remaining"`
	SyncedAt         *time.Time `json:"synced_at,omitempty"`
}
