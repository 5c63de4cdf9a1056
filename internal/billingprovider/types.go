// Package billingprovider реализует клиент query API биллинг-провайдера.
//
// Провайдер — единственный источник правды о подписке: webhook-события лишь
// сигнализируют, что состояние надо пересчитать, а каноническое состояние
// всегда берётся отсюда.
package billingprovider

import "time"

// SubscriberInfo — ответ провайдера на запрос состояния подписчика.
type SubscriberInfo struct {
	Subscriber Subscriber `json:"subscriber"`
}

// Subscriber описывает подписчика и его entitlement-ы.
type Subscriber struct {
	OriginalAppUserID string                 `json:"original_app_user_id"`
	Entitlements      map[string]Entitlement `json:"entitlements"`
}

// Entitlement — одно право подписчика (ключ map — название плана).
type Entitlement struct {
	ExpiresDate       *time.Time `json:"expires_date"`
	ProductIdentifier string     `json:"product_identifier"`
	PurchaseDate      time.Time  `json:"purchase_date"`
	Store             string     `json:"store"`           // app_store, play_store, stripe
	PeriodType        string     `json:"period_type"`     // normal, trial, intro
	BillingPeriod     string     `json:"billing_period"`  // monthly, yearly
	BillingIssuesAt   *time.Time `json:"billing_issues_detected_at"`
}

// WebhookPayload — событие, присланное провайдером. Из него читается только
// ссылка на аккаунт; статусу, плану и цене в payload не доверяем.
type WebhookPayload struct {
	Event struct {
		Type          string            `json:"type"` // INITIAL_PURCHASE, RENEWAL, CANCELLATION...
		AppUserID     string            `json:"app_user_id"`
		SubscriberRef string            `json:"subscriber_ref"`
		Environment   string            `json:"environment"`
		Metadata      map[string]string `json:"metadata"`
	} `json:"event"`
}

// AccountRef извлекает ссылку на аккаунт из события: сначала metadata,
// затем subscriber_ref, затем app_user_id.
func (p *WebhookPayload) AccountRef() string {
	if uid, ok := p.Event.Metadata["account_uid"]; ok && uid != "" {
		return uid
	}
	if p.Event.SubscriberRef != "" {
		return p.Event.SubscriberRef
	}
	return p.Event.AppUserID
}
