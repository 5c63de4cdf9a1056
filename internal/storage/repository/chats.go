package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

// CreateChat вставляет новый чат, привязанный либо к аккаунту, либо к
// отпечатку устройства, и возвращает его UID.
func (s *Storage) CreateChat(ctx context.Context, chat models.Chat) (string, error) {
	const op = "repository.CreateChat"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO chats (account_uid, device_fingerprint, title)
			  VALUES ($1, $2, $3)
			  RETURNING uid`
	var uid string
	err := s.DB.QueryRowContext(ctx, query, chat.AccountUID, chat.DeviceFingerprint, chat.Title).Scan(&uid)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return uid, nil
}

// ListChatsByAccount возвращает чаты аккаунта с пагинацией.
func (s *Storage) ListChatsByAccount(ctx context.Context, accountUID string, limit, offset int) ([]*models.Chat, error) {
	const op = "repository.ListChatsByAccount"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, account_uid, device_fingerprint, title, created_at
			  FROM chats
			  WHERE account_uid = $1
			  ORDER BY created_at DESC
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, accountUID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Chat
	for rows.Next() {
		var item models.Chat
		if err := rows.Scan(&item.UID, &item.AccountUID, &item.DeviceFingerprint,
			&item.Title, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CountChatsByFingerprint возвращает число чатов, всё ещё привязанных к
// отпечатку устройства (то есть не перенесённых на аккаунт).
func (s *Storage) CountChatsByFingerprint(ctx context.Context, fingerprint string) (int, error) {
	const op = "repository.CountChatsByFingerprint"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COUNT(*) FROM chats WHERE device_fingerprint = $1 AND account_uid IS NULL`
	var count int
	if err := s.DB.QueryRowContext(ctx, query, fingerprint).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}
