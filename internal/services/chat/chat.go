// Package chat содержит бизнес-логику создания и выдачи чатов.
// Создание чата — операция, списывающая trial-кредит.
package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

// ChatRepository определяет методы хранилища для работы с чатами.
type ChatRepository interface {
	// CreateChat вставляет чат, привязанный к аккаунту либо к отпечатку.
	CreateChat(ctx context.Context, chat models.Chat) (string, error)
	// ListChatsByAccount возвращает чаты аккаунта постранично.
	ListChatsByAccount(ctx context.Context, accountUID string, limit, offset int) ([]*models.Chat, error)
}

// CreditConsumer атомарно списывает один trial-кредит с аккаунта.
type CreditConsumer interface {
	ConsumeCredit(ctx context.Context, accountUID string) error
}

// TrialResolver возвращает trial-аккаунт анонимного устройства.
type TrialResolver interface {
	FindTrialByFingerprint(ctx context.Context, fingerprint string) (*models.Account, error)
}

// Service реализует операции над чатами.
type Service struct {
	repo    ChatRepository
	credits CreditConsumer
	trials  TrialResolver
	log     *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo ChatRepository, credits CreditConsumer, trials TrialResolver, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		credits: credits,
		trials:  trials,
		log:     log,
	}
}

// CreateForAccount списывает кредит с аккаунта и создаёт чат.
// Для платных аккаунтов списание — no-op. При исчерпании кредитов
// возвращает models.ErrTrialExhausted, чат не создаётся.
func (s *Service) CreateForAccount(ctx context.Context, accountUID, title string) (string, error) {
	const op = "chat.CreateForAccount"

	if err := s.credits.ConsumeCredit(ctx, accountUID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	uid, err := s.repo.CreateChat(ctx, models.Chat{AccountUID: &accountUID, Title: title})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("created chat",
		slog.String("chat_uid", uid), slog.String("account_uid", accountUID))
	return uid, nil
}

// CreateForDevice создаёт чат для анонимного устройства, списывая кредит с
// его trial-аккаунта. Чат остаётся привязанным к отпечатку до миграции.
func (s *Service) CreateForDevice(ctx context.Context, fingerprint, title string) (string, error) {
	const op = "chat.CreateForDevice"

	trial, err := s.trials.FindTrialByFingerprint(ctx, fingerprint)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := s.credits.ConsumeCredit(ctx, trial.UID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	uid, err := s.repo.CreateChat(ctx, models.Chat{DeviceFingerprint: &fingerprint, Title: title})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("created chat for anonymous device", slog.String("chat_uid", uid))
	return uid, nil
}

// ListForAccount возвращает чаты аккаунта, включая перенесённые при миграции.
func (s *Service) ListForAccount(ctx context.Context, accountUID string, limit, offset int) ([]*models.Chat, error) {
	const op = "chat.ListForAccount"

	chats, err := s.repo.ListChatsByAccount(ctx, accountUID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return chats, nil
}
