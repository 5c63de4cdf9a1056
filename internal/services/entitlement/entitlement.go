// Package entitlement содержит бизнес-логику синхронизации состояния подписки
// с биллинг-провайдером.
//
// Webhook-событие — только сигнал пересчитать состояние: каноническое
// состояние всегда перечитывается из query API провайдера и целиком
// записывается в аккаунт. Благодаря этому повторная доставка того же события
// и доставка вне порядка дают тот же результат, что и первая.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/account-aggregator/internal/billingprovider"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/sl"
	"github.com/magabrotheeeer/account-aggregator/internal/metrics"
	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

// AccountRepository определяет методы хранилища для записи состояния подписки.
type AccountRepository interface {
	// GetAccount возвращает аккаунт по UID.
	GetAccount(ctx context.Context, uid string) (*models.Account, error)
	// FindByAccountRef возвращает аккаунт по UID или по subscriber_ref.
	FindByAccountRef(ctx context.Context, ref string) (*models.Account, error)
	// UpsertEntitlement записывает каноническое состояние подписки в аккаунт.
	UpsertEntitlement(ctx context.Context, accountUID string, state models.EntitlementState) error
}

// BillingClient описывает query API биллинг-провайдера.
type BillingClient interface {
	// GetSubscriberState возвращает каноническое состояние подписчика.
	GetSubscriberState(ctx context.Context, subscriberRef string) (*models.EntitlementState, error)
	// CancelSubscription отменяет активную подписку подписчика.
	CancelSubscription(ctx context.Context, subscriberRef string) error
}

// Service реализует Entitlement Synchronizer.
type Service struct {
	repo    AccountRepository
	billing BillingClient
	log     *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo AccountRepository, billing BillingClient, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		billing: billing,
		log:     log,
	}
}

// subscriberRef возвращает ссылку подписчика у провайдера: сохранённую либо,
// по соглашению с провайдером, UID аккаунта (app_user_id).
func subscriberRef(account *models.Account) string {
	if account.SubscriberRef != nil && *account.SubscriberRef != "" {
		return *account.SubscriberRef
	}
	return account.UID
}

// ProcessWebhookEvent обрабатывает проверенное webhook-событие: из payload
// берётся только ссылка на аккаунт, состояние перечитывается у провайдера.
// Подпись уже проверена обработчиком HTTP.
func (s *Service) ProcessWebhookEvent(ctx context.Context, payload *billingprovider.WebhookPayload) error {
	const op = "entitlement.ProcessWebhookEvent"

	ref := payload.AccountRef()
	if ref == "" {
		return fmt.Errorf("%s: event without account reference", op)
	}

	// Ссылка из события — UID аккаунта либо subscriber_ref провайдера.
	account, err := s.repo.FindByAccountRef(ctx, ref)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.sync(ctx, account); err != nil {
		metrics.WebhookEvents.WithLabelValues("error").Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.WebhookEvents.WithLabelValues("ok").Inc()
	s.log.Info("webhook event applied",
		slog.String("account_uid", account.UID),
		slog.String("event_type", payload.Event.Type))
	return nil
}

// VerifyNow — ручной запасной путь для клиентов, не доверяющих задержке
// webhook: та же сверка с провайдером, что и при событии.
func (s *Service) VerifyNow(ctx context.Context, accountUID string) (*models.EntitlementSummary, error) {
	const op = "entitlement.VerifyNow"

	account, err := s.repo.GetAccount(ctx, accountUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	summary, err := s.sync(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return summary, nil
}

// Cancel отменяет подписку у провайдера (best effort) и понижает аккаунт
// до trial без кредитов. Вызывается Lifecycle Manager при удалении аккаунта.
func (s *Service) Cancel(ctx context.Context, account *models.Account) error {
	const op = "entitlement.Cancel"

	if err := s.billing.CancelSubscription(ctx, subscriberRef(account)); err != nil &&
		!errors.Is(err, models.ErrNoSubscription) {
		s.log.Warn("provider-side cancel failed", sl.Err(err))
	}

	zero := 0
	state := models.EntitlementState{
		Tier:             models.TierTrial,
		CreditsRemaining: &zero,
		SubscriberRef:    subscriberRef(account),
	}
	if err := s.repo.UpsertEntitlement(ctx, account.UID, state); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("entitlement cancelled", slog.String("account_uid", account.UID))
	return nil
}

// sync перечитывает каноническое состояние у провайдера до открытия
// транзакции записи и целиком записывает его в аккаунт.
func (s *Service) sync(ctx context.Context, account *models.Account) (*models.EntitlementSummary, error) {
	state, err := s.billing.GetSubscriberState(ctx, subscriberRef(account))
	if errors.Is(err, models.ErrNoSubscription) {
		if !account.IsPaid() {
			// Trial-аккаунт без покупок: нечего синхронизировать,
			// кредиты не трогаем.
			return &models.EntitlementSummary{
				Tier:             account.Tier,
				Plan:             account.Plan,
				BillingPeriod:    account.BillingPeriod,
				CreditsRemaining: account.CreditsRemaining,
				SyncedAt:         account.LastEntitlementSyncAt,
			}, nil
		}
		// Подписка истекла или отменена: понижаем до trial без кредитов —
		// стартовый грант уже был израсходован.
		zero := 0
		state = &models.EntitlementState{
			Tier:             models.TierTrial,
			CreditsRemaining: &zero,
			SubscriberRef:    subscriberRef(account),
		}
	} else if err != nil {
		return nil, err
	}

	if err := s.repo.UpsertEntitlement(ctx, account.UID, *state); err != nil {
		return nil, err
	}

	updated, err := s.repo.GetAccount(ctx, account.UID)
	if err != nil {
		return nil, err
	}
	return &models.EntitlementSummary{
		Tier:             updated.Tier,
		Plan:             updated.Plan,
		BillingPeriod:    updated.BillingPeriod,
		CreditsRemaining: updated.CreditsRemaining,
		SyncedAt:         updated.LastEntitlementSyncAt,
	}, nil
}
