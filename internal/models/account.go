// Package models содержит доменные структуры аккаунтов, сессий и чатов,
// а также вспомогательные типы для приёма данных из JSON-запросов.
package models

import "time"

// Тарифы аккаунта.
const (
	TierTrial = "trial"
	TierPaid  = "paid"
)

// Статусы аккаунта.
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// Планы платной подписки.
const (
	PlanIndividual   = "individual"
	PlanProfessional = "professional"
	PlanTeam         = "team"
)

// Периоды оплаты.
const (
	BillingMonthly = "monthly"
	BillingYearly  = "yearly"
)

// Account представляет собой основную модель аккаунта пользователя.
// До привязки к внешнему провайдеру идентичности аккаунт идентифицируется
// по DeviceFingerprint, после привязки — только по ExternalIdentityID;
// отпечаток устройства сохраняется как происхождение миграции.
type Account struct {
	UID                   string     // Суррогатный ключ, выдаётся один раз
	ExternalIdentityID    *string    // Subject внешнего провайдера идентичности
	DeviceFingerprint     *string    // Отпечаток анонимного устройства
	Tier                  string     // trial или paid
	Plan                  *string    // План платной подписки
	BillingPeriod         *string    // monthly или yearly
	CreditsRemaining      *int       // nil означает безлимит (платный тариф)
	Status                string     // active или deleted
	DeletedAt             *time.Time // Заполняется только при status = deleted
	DisplayName           *string
	AvatarURL             *string
	Email                 *string
	EmailVerified         bool
	SubscriberRef         *string    // Идентификатор подписчика у биллинг-провайдера
	OriginatingPlatform   *string    // ios, android, web
	LastEntitlementSyncAt *time.Time // Время последней сверки с биллинг-провайдером
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// IsDeleted сообщает, помечен ли аккаунт как удалённый.
func (a *Account) IsDeleted() bool {
	return a.Status == StatusDeleted
}

// IsPaid сообщает, действует ли на аккаунте платная подписка.
func (a *Account) IsPaid() bool {
	return a.Tier == TierPaid
}

// Profile содержит проверенные провайдером идентичности поля профиля,
// переносимые в аккаунт при привязке.
type Profile struct {
	Email         string
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
}

// AccountSummary используется для формирования JSON-ответа клиенту.
type AccountSummary struct {
	UID              string  `json:"uid"`
	Tier             string  `json:"tier"`
	Plan             *string `json:"plan,omitempty"`
	BillingPeriod    *string `json:"billing_period,omitempty"`
	CreditsRemaining *int    `json:"credits_remaining"`
	EmailVerified    bool    `json:"email_verified"`
}

// Summary собирает AccountSummary из аккаунта.
func (a *Account) Summary() AccountSummary {
	return AccountSummary{
		UID:              a.UID,
		Tier:             a.Tier,
		Plan:             a.Plan,
		BillingPeriod:    a.BillingPeriod,
		CreditsRemaining: a.CreditsRemaining,
		EmailVerified:    a.EmailVerified,
	}
}
