package repository

import (
	"context"
	"fmt"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"database/sql"
)

// NewFromConnectionString создаёт подключение к PostgreSQL и проверяет его
// доступность.
func NewFromConnectionString(connectionString string) (*Storage, error) {
	const op = "repository.NewFromConnectionString"

	db, err := sql.Open("pgx", connectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Storage{DB: db}, nil
}

// CheckDatabaseReady проверяет готовность базы данных.
func (s *Storage) CheckDatabaseReady(ctx context.Context) error {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'accounts'
    )`).Scan(&exists)
	if err != nil || !exists {
		return fmt.Errorf("required table accounts missing or query error: %w", err)
	}
	return nil
}
