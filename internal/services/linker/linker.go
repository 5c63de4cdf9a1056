// Package linker содержит бизнес-логику привязки проверенного удостоверения
// провайдера идентичности к аккаунту, включая миграцию trial-аккаунта.
package linker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/account-aggregator/internal/lib/assertion"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/sl"
	"github.com/magabrotheeeer/account-aggregator/internal/metrics"
	"github.com/magabrotheeeer/account-aggregator/internal/models"
	"github.com/magabrotheeeer/account-aggregator/internal/rabbitmq"
)

// AccountRepository определяет методы хранилища для привязки и миграции.
type AccountRepository interface {
	// FindByExternalIdentityID возвращает аккаунт по subject провайдера.
	FindByExternalIdentityID(ctx context.Context, externalID string) (*models.Account, error)
	// FindTrialByFingerprint возвращает активный непривязанный trial-аккаунт.
	FindTrialByFingerprint(ctx context.Context, fingerprint string) (*models.Account, error)
	// MigrateTrial атомарно привязывает trial-аккаунт и переносит его чаты.
	MigrateTrial(ctx context.Context, accountUID, fingerprint, externalID string, profile models.Profile, credits int) (*models.Account, int, error)
	// CreateRegisteredAccount вставляет аккаунт, сразу привязанный к провайдеру.
	CreateRegisteredAccount(ctx context.Context, externalID string, profile models.Profile, credits int) (*models.Account, error)
}

// LifecycleManager разбирает помеченные удалёнными аккаунты при повторном входе.
type LifecycleManager interface {
	CheckRestoreOrReject(ctx context.Context, account *models.Account) (*models.Account, error)
}

// EventPublisher публикует событие регистрации для воркера уведомлений.
type EventPublisher interface {
	Publish(routingKey string, event rabbitmq.AccountEvent) error
}

// Service реализует Account Linker.
type Service struct {
	repo                AccountRepository
	lifecycle           LifecycleManager
	publisher           EventPublisher
	log                 *slog.Logger
	registrationCredits int
}

// New создает новый экземпляр Service.
func New(repo AccountRepository, lifecycle LifecycleManager, publisher EventPublisher, log *slog.Logger, registrationCredits int) *Service {
	return &Service{
		repo:                repo,
		lifecycle:           lifecycle,
		publisher:           publisher,
		log:                 log,
		registrationCredits: registrationCredits,
	}
}

// Link привязывает проверенное удостоверение к аккаунту. Алгоритм строго
// по порядку: поиск по subject (идемпотентный повторный вход), затем миграция
// trial-аккаунта по отпечатку устройства, затем создание нового аккаунта.
// Возвращает аккаунт и число перенесённых чатов.
//
// Проигравший гонку миграции вызов получает models.ErrMigrationConflict из
// хранилища и один раз повторяет алгоритм: повторный поиск по subject находит
// результат победителя.
func (s *Service) Link(ctx context.Context, ident *assertion.IdentityAssertion, fingerprint string) (*models.Account, int, error) {
	const op = "linker.Link"

	account, migrated, err := s.linkOnce(ctx, ident, fingerprint)
	if errors.Is(err, models.ErrMigrationConflict) {
		s.log.Info("link lost migration race, retrying as lookup",
			slog.String("subject", ident.Subject))
		account, migrated, err = s.linkOnce(ctx, ident, fingerprint)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return account, migrated, nil
}

func (s *Service) linkOnce(ctx context.Context, ident *assertion.IdentityAssertion, fingerprint string) (*models.Account, int, error) {
	// Шаг 1: повторный вход — аккаунт уже привязан к этому subject.
	account, err := s.repo.FindByExternalIdentityID(ctx, ident.Subject)
	if err == nil {
		if account.IsDeleted() {
			restored, err := s.lifecycle.CheckRestoreOrReject(ctx, account)
			if err != nil {
				return nil, 0, err
			}
			return restored, 0, nil
		}
		return account, 0, nil
	}
	if !errors.Is(err, models.ErrAccountNotFound) {
		return nil, 0, err
	}

	// Шаг 2: миграция trial-аккаунта устройства. Кредиты сбрасываются на
	// регистрационный грант — остаток trial-кредитов не сохраняется.
	if fingerprint != "" {
		trial, err := s.repo.FindTrialByFingerprint(ctx, fingerprint)
		if err == nil {
			account, migrated, err := s.repo.MigrateTrial(ctx, trial.UID, fingerprint,
				ident.Subject, ident.Profile, s.registrationCredits)
			if err != nil {
				return nil, 0, err
			}
			metrics.Migrations.Inc()
			s.log.Info("migrated trial account",
				slog.String("account_uid", account.UID),
				slog.Int("migrated_chats", migrated))
			s.publishRegistered(account)
			return account, migrated, nil
		}
		if !errors.Is(err, models.ErrAccountNotFound) {
			return nil, 0, err
		}
	}

	// Шаг 3: ни привязки, ни trial-аккаунта — создаём новый.
	account, err = s.repo.CreateRegisteredAccount(ctx, ident.Subject, ident.Profile, s.registrationCredits)
	if err != nil {
		return nil, 0, err
	}
	s.log.Info("created registered account", slog.String("account_uid", account.UID))
	s.publishRegistered(account)
	return account, 0, nil
}

func (s *Service) publishRegistered(account *models.Account) {
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
	if err := s.publisher.Publish("registered", event); err != nil {
		s.log.Warn("failed to publish registered event", sl.Err(err))
	}
}
