// Package identity содержит бизнес-логику выдачи trial-аккаунтов анонимным
// устройствам и списания trial-кредитов.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/account-aggregator/internal/lib/sl"
	"github.com/magabrotheeeer/account-aggregator/internal/metrics"
	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

// AccountRepository определяет методы хранилища, нужные для выдачи trial.
type AccountRepository interface {
	// FindTrialByFingerprint возвращает активный непривязанный trial-аккаунт.
	FindTrialByFingerprint(ctx context.Context, fingerprint string) (*models.Account, error)
	// CreateTrialAccount вставляет новый trial-аккаунт.
	CreateTrialAccount(ctx context.Context, fingerprint string, credits int) (*models.Account, error)
	// CountTrialsByAddress возвращает число trial-аккаунтов, созданных с адреса за сутки.
	CountTrialsByAddress(ctx context.Context, address string) (int, error)
	// IncrementTrialCounter увеличивает счётчик создания trial с адреса.
	IncrementTrialCounter(ctx context.Context, address string) error
	// ConsumeCredit атомарно списывает один trial-кредит.
	ConsumeCredit(ctx context.Context, accountUID string) error
}

// Service реализует Identity Resolver.
type Service struct {
	repo                AccountRepository
	log                 *slog.Logger
	startingCredits     int
	maxTrialsPerAddress int
}

// New создает новый экземпляр Service.
func New(repo AccountRepository, log *slog.Logger, startingCredits, maxTrialsPerAddress int) *Service {
	return &Service{
		repo:                repo,
		log:                 log,
		startingCredits:     startingCredits,
		maxTrialsPerAddress: maxTrialsPerAddress,
	}
}

// ResolveOrCreateTrial идемпотентно возвращает trial-аккаунт устройства.
// Повторный вызов с тем же отпечатком возвращает существующий аккаунт без
// изменений. Создание нового аккаунта ограничено потолком на адрес —
// счётчик намеренно неточный (at-least-once), это антиабьюз-эвристика.
func (s *Service) ResolveOrCreateTrial(ctx context.Context, fingerprint, originAddress string) (*models.Account, error) {
	const op = "identity.ResolveOrCreateTrial"

	account, err := s.repo.FindTrialByFingerprint(ctx, fingerprint)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, models.ErrAccountNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	count, err := s.repo.CountTrialsByAddress(ctx, originAddress)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if count >= s.maxTrialsPerAddress {
		s.log.Warn("trial creation ceiling reached",
			slog.String("origin", originAddress), slog.Int("count", count))
		return nil, fmt.Errorf("%s: %w", op, models.ErrRateLimited)
	}

	account, err = s.repo.CreateTrialAccount(ctx, fingerprint, s.startingCredits)
	if errors.Is(err, models.ErrMigrationConflict) {
		// Проигрыш гонки двух одинаковых устройств: победитель уже создал
		// аккаунт, возвращаем его.
		account, err = s.repo.FindTrialByFingerprint(ctx, fingerprint)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.repo.IncrementTrialCounter(ctx, originAddress); err != nil {
		s.log.Warn("failed to increment trial counter", sl.Err(err))
	}
	metrics.TrialCreations.Inc()
	s.log.Info("created trial account", slog.String("account_uid", account.UID))
	return account, nil
}

// ConsumeCredit списывает один кредит с аккаунта. Для платных аккаунтов
// (credits_remaining = NULL) вызов ничего не списывает.
func (s *Service) ConsumeCredit(ctx context.Context, accountUID string) error {
	return s.repo.ConsumeCredit(ctx, accountUID)
}
