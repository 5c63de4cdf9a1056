// Package lifecycle содержит бизнес-логику мягкого удаления аккаунта
// и восстановления в пределах льготного периода.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/account-aggregator/internal/lib/sl"
	"github.com/magabrotheeeer/account-aggregator/internal/metrics"
	"github.com/magabrotheeeer/account-aggregator/internal/models"
	"github.com/magabrotheeeer/account-aggregator/internal/rabbitmq"
)

// GraceWindow — срок после мягкого удаления, в течение которого аккаунт
// можно восстановить. После его истечения удаление терминально.
const GraceWindow = 30 * 24 * time.Hour

// AccountRepository определяет методы хранилища для переходов статуса.
type AccountRepository interface {
	// GetAccount возвращает аккаунт по UID.
	GetAccount(ctx context.Context, uid string) (*models.Account, error)
	// SoftDelete помечает аккаунт удалённым.
	SoftDelete(ctx context.Context, accountUID string) (time.Time, error)
	// Restore возвращает аккаунт в активное состояние, если deleted_at > notBefore.
	Restore(ctx context.Context, accountUID string, notBefore time.Time) (*models.Account, error)
}

// EntitlementCanceler отменяет платную подписку удаляемого аккаунта.
type EntitlementCanceler interface {
	Cancel(ctx context.Context, account *models.Account) error
}

// EventPublisher публикует события жизненного цикла для воркера уведомлений.
type EventPublisher interface {
	Publish(routingKey string, event rabbitmq.AccountEvent) error
}

// Service реализует Lifecycle Manager.
type Service struct {
	repo      AccountRepository
	canceler  EntitlementCanceler
	publisher EventPublisher
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo AccountRepository, canceler EntitlementCanceler, publisher EventPublisher, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		canceler:  canceler,
		publisher: publisher,
		log:       log,
	}
}

// SoftDelete помечает аккаунт удалённым, сохраняя его данные на весь льготный
// период, и отменяет активную платную подписку через Entitlement Synchronizer.
func (s *Service) SoftDelete(ctx context.Context, accountUID string) error {
	const op = "lifecycle.SoftDelete"

	account, err := s.repo.GetAccount(ctx, accountUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	deletedAt, err := s.repo.SoftDelete(ctx, accountUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("account soft deleted",
		slog.String("account_uid", accountUID),
		slog.Time("deleted_at", deletedAt))

	if account.IsPaid() {
		// Отмена у провайдера — best effort: webhook провайдера позже
		// досинхронизирует состояние, если запрос не прошёл.
		if err := s.canceler.Cancel(ctx, account); err != nil {
			s.log.Warn("failed to cancel subscription on delete", sl.Err(err))
		}
	}

	s.publishEvent("deleted", account)
	return nil
}

// CheckRestoreOrReject разбирает помеченный удалённым аккаунт: внутри
// льготного периода аккаунт восстанавливается, после — возвращается
// терминальная ошибка models.ErrAccountPermanentlyDeleted.
// Активный аккаунт возвращается без изменений.
func (s *Service) CheckRestoreOrReject(ctx context.Context, account *models.Account) (*models.Account, error) {
	const op = "lifecycle.CheckRestoreOrReject"

	if !account.IsDeleted() {
		return account, nil
	}
	if account.DeletedAt == nil {
		return nil, fmt.Errorf("%s: deleted account without deleted_at", op)
	}

	graceDeadline := account.DeletedAt.Add(GraceWindow)
	if !time.Now().Before(graceDeadline) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrAccountPermanentlyDeleted)
	}

	// Условие deleted_at > notBefore повторяется в запросе, чтобы гонка
	// с истечением срока не восстановила просроченный аккаунт.
	restored, err := s.repo.Restore(ctx, account.UID, time.Now().Add(-GraceWindow))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.Restores.Inc()
	s.log.Info("account restored within grace window", slog.String("account_uid", restored.UID))
	s.publishEvent("restored", restored)
	return restored, nil
}

func (s *Service) publishEvent(routingKey string, account *models.Account) {
	if s.publisher == nil {
		return
	}
	event := rabbitmq.AccountEvent{
		AccountUID: account.UID,
		OccurredAt: time.Now().UTC(),
	}
	if account.Email != nil {
		event.Email = *account.Email
	}
	if err := s.publisher.Publish(routingKey, event); err != nil {
		s.log.Warn("failed to publish account event",
			slog.String("routing_key", routingKey), sl.Err(err))
	}
}
