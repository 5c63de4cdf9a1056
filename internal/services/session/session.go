// Package session содержит бизнес-логику реестра сессий устройств,
// включая кеширование проверок токена.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/account-aggregator/internal/lib/sl"
	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

// SessionRepository определяет методы хранилища для работы с сессиями.
type SessionRepository interface {
	// CreateSession вставляет новую сессию устройства.
	CreateSession(ctx context.Context, accountUID, deviceLabel, networkOrigin string) (*models.Session, error)
	// GetSession возвращает сессию по UID.
	GetSession(ctx context.Context, sessionUID string) (*models.Session, error)
	// ListSessions возвращает все сессии аккаунта.
	ListSessions(ctx context.Context, accountUID string) ([]*models.Session, error)
	// TouchSession обновляет время последней активности.
	TouchSession(ctx context.Context, sessionUID string) error
	// RevokeSession помечает сессию отозванной.
	RevokeSession(ctx context.Context, accountUID, sessionUID string) (int, error)
	// RevokeAllSessions отзывает все сессии аккаунта, кроме указанной.
	RevokeAllSessions(ctx context.Context, accountUID, exceptUID string) (int, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(key string, value any, expiration time.Duration) error
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(key string) error
}

// Отзыв сессии действует с точностью до TTL кеша: уже начатые запросы
// доработают — реестр ничего не прерывает.
const validateCacheTTL = time.Minute

// Service реализует Session Registry.
type Service struct {
	repo  SessionRepository
	cache Cache
	log   *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo SessionRepository, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

func cacheKey(sessionUID string) string {
	return fmt.Sprintf("session:%s", sessionUID)
}

// Create регистрирует новую сессию устройства.
func (s *Service) Create(ctx context.Context, accountUID, deviceLabel, networkOrigin string) (*models.Session, error) {
	session, err := s.repo.CreateSession(ctx, accountUID, deviceLabel, networkOrigin)
	if err != nil {
		return nil, err
	}
	s.log.Info("created session",
		slog.String("session_uid", session.UID),
		slog.String("account_uid", accountUID))
	return session, nil
}

// Validate проверяет, что сессия существует и не отозвана, и отмечает
// активность. Результат кешируется на validateCacheTTL.
func (s *Service) Validate(ctx context.Context, sessionUID string) (*models.Session, error) {
	const op = "session.Validate"

	var cached models.Session
	found, err := s.cache.Get(cacheKey(sessionUID), &cached)
	if err != nil {
		s.log.Warn("session cache read failed", sl.Err(err))
	}
	if found && err == nil {
		if cached.Revoked {
			return nil, fmt.Errorf("%s: %w", op, models.ErrSessionRevoked)
		}
		return &cached, nil
	}

	session, err := s.repo.GetSession(ctx, sessionUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if session.Revoked {
		return nil, fmt.Errorf("%s: %w", op, models.ErrSessionRevoked)
	}

	if err := s.repo.TouchSession(ctx, sessionUID); err != nil {
		s.log.Warn("failed to touch session", sl.Err(err))
	}
	if err := s.cache.Set(cacheKey(sessionUID), session, validateCacheTTL); err != nil {
		s.log.Warn("session cache write failed", sl.Err(err))
	}
	return session, nil
}

// List возвращает все сессии аккаунта; сессия вызывающего помечается Current.
func (s *Service) List(ctx context.Context, accountUID, currentSessionUID string) ([]models.SessionView, error) {
	sessions, err := s.repo.ListSessions(ctx, accountUID)
	if err != nil {
		return nil, err
	}

	views := make([]models.SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, models.SessionView{
			UID:           session.UID,
			DeviceLabel:   session.DeviceLabel,
			NetworkOrigin: session.NetworkOrigin,
			CreatedAt:     session.CreatedAt,
			LastSeenAt:    session.LastSeenAt,
			Revoked:       session.Revoked,
			Current:       session.UID == currentSessionUID,
		})
	}
	return views, nil
}

// Revoke помечает сессию отозванной. Возвращает models.ErrSessionNotFound,
// если сессия не найдена или принадлежит другому аккаунту.
func (s *Service) Revoke(ctx context.Context, accountUID, sessionUID string) error {
	const op = "session.Revoke"

	affected, err := s.repo.RevokeSession(ctx, accountUID, sessionUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrSessionNotFound)
	}
	if err := s.cache.Invalidate(cacheKey(sessionUID)); err != nil {
		s.log.Warn("session cache invalidate failed", sl.Err(err))
	}
	s.log.Info("revoked session", slog.String("session_uid", sessionUID))
	return nil
}

// RevokeAllExcept отзывает все сессии аккаунта, кроме текущей.
// Возвращает число отозванных сессий.
func (s *Service) RevokeAllExcept(ctx context.Context, accountUID, exceptSessionUID string) (int, error) {
	const op = "session.RevokeAllExcept"

	sessions, err := s.repo.ListSessions(ctx, accountUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	revoked, err := s.repo.RevokeAllSessions(ctx, accountUID, exceptSessionUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	for _, session := range sessions {
		if session.UID == exceptSessionUID {
			continue
		}
		if err := s.cache.Invalidate(cacheKey(session.UID)); err != nil {
			s.log.Warn("session cache invalidate failed", sl.Err(err))
		}
	}
	s.log.Info("revoked sessions",
		slog.String("account_uid", accountUID), slog.Int("count", revoked))
	return revoked, nil
}
