package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

const sessionColumns = `uid, account_uid, device_label, network_origin, created_at, last_seen_at, revoked`

func scanSession(row interface{ Scan(...any) error }) (*models.Session, error) {
	var s models.Session
	if err := row.Scan(&s.UID, &s.AccountUID, &s.DeviceLabel, &s.NetworkOrigin,
		&s.CreatedAt, &s.LastSeenAt, &s.Revoked); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession вставляет новую сессию устройства и возвращает её.
func (s *Storage) CreateSession(ctx context.Context, accountUID, deviceLabel, networkOrigin string) (*models.Session, error) {
	const op = "repository.CreateSession"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO sessions (account_uid, device_label, network_origin)
			  VALUES ($1, $2, $3)
			  RETURNING ` + sessionColumns
	row := s.DB.QueryRowContext(ctx, query, accountUID, deviceLabel, networkOrigin)
	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return session, nil
}

// GetSession возвращает сессию по UID.
func (s *Storage) GetSession(ctx context.Context, sessionUID string) (*models.Session, error) {
	const op = "repository.GetSession"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE uid = $1`
	row := s.DB.QueryRowContext(ctx, query, sessionUID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return session, nil
}

// ListSessions возвращает все сессии аккаунта, включая отозванные,
// от новых к старым.
func (s *Storage) ListSessions(ctx context.Context, accountUID string) ([]*models.Session, error) {
	const op = "repository.ListSessions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + sessionColumns + `
			  FROM sessions
			  WHERE account_uid = $1
			  ORDER BY last_seen_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, accountUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, session)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// TouchSession обновляет время последней активности сессии.
func (s *Storage) TouchSession(ctx context.Context, sessionUID string) error {
	const op = "repository.TouchSession"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE sessions SET last_seen_at = NOW() WHERE uid = $1`
	if _, err := s.DB.ExecContext(ctx, query, sessionUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RevokeSession помечает сессию отозванной. Запись не удаляется.
// Возвращает число затронутых строк: 0 означает, что сессия не найдена
// или принадлежит другому аккаунту.
func (s *Storage) RevokeSession(ctx context.Context, accountUID, sessionUID string) (int, error) {
	const op = "repository.RevokeSession"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE sessions SET revoked = TRUE
			  WHERE uid = $1 AND account_uid = $2 AND revoked = FALSE`
	result, err := s.DB.ExecContext(ctx, query, sessionUID, accountUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(affected), nil
}

// RevokeAllSessions помечает отозванными все сессии аккаунта, кроме указанной.
// Пустой exceptUID отзывает все сессии без исключения.
func (s *Storage) RevokeAllSessions(ctx context.Context, accountUID, exceptUID string) (int, error) {
	const op = "repository.RevokeAllSessions"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE sessions SET revoked = TRUE
			  WHERE account_uid = $1 AND revoked = FALSE
			    AND ($2 = '' OR uid::text <> $2)`
	result, err := s.DB.ExecContext(ctx, query, accountUID, exceptUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(affected), nil
}
