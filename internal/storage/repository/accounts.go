// Package repository содержит методы работы с аккаунтами, сессиями и чатами
// поверх PostgreSQL. Все мутации одного аккаунта выполняются короткими
// транзакциями, изоляцию обеспечивает само хранилище.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

// Storage инкапсулирует соединение с базой данных PostgreSQL.
type Storage struct {
	DB *sql.DB
}

// New оборачивает готовое соединение методами репозитория.
func New(db *sql.DB) *Storage {
	return &Storage{DB: db}
}

const accountColumns = `uid, external_identity_id, device_fingerprint, tier, plan,
	billing_period, credits_remaining, status, deleted_at, display_name, avatar_url,
	email, email_verified, subscriber_ref, originating_platform,
	last_entitlement_sync_at, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	var a models.Account
	var deletedAt, lastSync sql.NullTime
	var externalID, fingerprint, plan, period, displayName, avatarURL, email, subscriberRef, platform sql.NullString
	var credits sql.NullInt64

	if err := row.Scan(&a.UID, &externalID, &fingerprint, &a.Tier, &plan,
		&period, &credits, &a.Status, &deletedAt, &displayName, &avatarURL,
		&email, &a.EmailVerified, &subscriberRef, &platform,
		&lastSync, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}

	setString := func(dst **string, v sql.NullString) {
		if v.Valid {
			s := v.String
			*dst = &s
		}
	}
	setString(&a.ExternalIdentityID, externalID)
	setString(&a.DeviceFingerprint, fingerprint)
	setString(&a.Plan, plan)
	setString(&a.BillingPeriod, period)
	setString(&a.DisplayName, displayName)
	setString(&a.AvatarURL, avatarURL)
	setString(&a.Email, email)
	setString(&a.SubscriberRef, subscriberRef)
	setString(&a.OriginatingPlatform, platform)
	if credits.Valid {
		c := int(credits.Int64)
		a.CreditsRemaining = &c
	}
	if deletedAt.Valid {
		a.DeletedAt = &deletedAt.Time
	}
	if lastSync.Valid {
		a.LastEntitlementSyncAt = &lastSync.Time
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// CreateTrialAccount вставляет новый анонимный trial-аккаунт.
// При гонке по отпечатку устройства возвращает models.ErrMigrationConflict,
// вызывающая сторона повторяет поиск.
func (s *Storage) CreateTrialAccount(ctx context.Context, fingerprint string, credits int) (*models.Account, error) {
	const op = "repository.CreateTrialAccount"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO accounts (device_fingerprint, tier, credits_remaining, status)
			  VALUES ($1, $2, $3, $4)
			  RETURNING ` + accountColumns
	row := s.DB.QueryRowContext(ctx, query, fingerprint, models.TierTrial, credits, models.StatusActive)
	account, err := scanAccount(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrMigrationConflict)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return account, nil
}

// FindTrialByFingerprint возвращает активный непривязанный trial-аккаунт
// по отпечатку устройства или models.ErrAccountNotFound.
func (s *Storage) FindTrialByFingerprint(ctx context.Context, fingerprint string) (*models.Account, error) {
	const op = "repository.FindTrialByFingerprint"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + accountColumns + `
			  FROM accounts
			  WHERE device_fingerprint = $1
			    AND external_identity_id IS NULL
			    AND status = $2`
	row := s.DB.QueryRowContext(ctx, query, fingerprint, models.StatusActive)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return account, nil
}

// FindByExternalIdentityID возвращает аккаунт по subject провайдера идентичности,
// включая помеченные как удалённые (их дальше разбирает Lifecycle Manager).
func (s *Storage) FindByExternalIdentityID(ctx context.Context, externalID string) (*models.Account, error) {
	const op = "repository.FindByExternalIdentityID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE external_identity_id = $1`
	row := s.DB.QueryRowContext(ctx, query, externalID)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return account, nil
}

// FindByAccountRef возвращает аккаунт по ссылке из webhook-события: это либо
// UID аккаунта (app_user_id по соглашению с провайдером), либо сохранённый
// subscriber_ref. Сравнение по uid::text не требует, чтобы ссылка была
// корректным UUID.
func (s *Storage) FindByAccountRef(ctx context.Context, ref string) (*models.Account, error) {
	const op = "repository.FindByAccountRef"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + accountColumns + `
			  FROM accounts
			  WHERE uid::text = $1 OR subscriber_ref = $1`
	row := s.DB.QueryRowContext(ctx, query, ref)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return account, nil
}

// GetAccount возвращает аккаунт по UID.
func (s *Storage) GetAccount(ctx context.Context, uid string) (*models.Account, error) {
	const op = "repository.GetAccount"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE uid = $1`
	row := s.DB.QueryRowContext(ctx, query, uid)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return account, nil
}

// CreateRegisteredAccount вставляет новый аккаунт, сразу привязанный к
// провайдеру идентичности. При гонке по subject возвращает
// models.ErrMigrationConflict.
func (s *Storage) CreateRegisteredAccount(ctx context.Context, externalID string, profile models.Profile, credits int) (*models.Account, error) {
	const op = "repository.CreateRegisteredAccount"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO accounts (external_identity_id, tier, credits_remaining, status,
			      display_name, avatar_url, email, email_verified)
			  VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)
			  RETURNING ` + accountColumns
	row := s.DB.QueryRowContext(ctx, query, externalID, models.TierTrial, credits, models.StatusActive,
		profile.DisplayName, profile.AvatarURL, profile.Email, profile.EmailVerified)
	account, err := scanAccount(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrMigrationConflict)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return account, nil
}

// MigrateTrial атомарно привязывает trial-аккаунт к провайдеру идентичности:
// проставляет subject и профиль, сбрасывает кредиты на регистрационный грант и
// в той же транзакции переводит чаты с отпечатка устройства на аккаунт.
// Возвращает число перенесённых чатов. Проигравший гонку вызов получает
// models.ErrMigrationConflict и разрешается повторным поиском.
func (s *Storage) MigrateTrial(ctx context.Context, accountUID, fingerprint, externalID string, profile models.Profile, credits int) (*models.Account, int, error) {
	const op = "repository.MigrateTrial"
	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `UPDATE accounts
			  SET external_identity_id = $1,
			      credits_remaining = $2,
			      display_name = NULLIF($3, ''),
			      avatar_url = NULLIF($4, ''),
			      email = NULLIF($5, ''),
			      email_verified = $6,
			      updated_at = NOW()
			  WHERE uid = $7 AND external_identity_id IS NULL
			  RETURNING ` + accountColumns
	row := tx.QueryRowContext(ctx, query, externalID, credits,
		profile.DisplayName, profile.AvatarURL, profile.Email, profile.EmailVerified, accountUID)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Конкурентная привязка уже забрала этот trial-аккаунт.
		return nil, 0, fmt.Errorf("%s: %w", op, models.ErrMigrationConflict)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, 0, fmt.Errorf("%s: %w", op, models.ErrMigrationConflict)
		}
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE chats
		 SET account_uid = $1, device_fingerprint = NULL
		 WHERE device_fingerprint = $2 AND account_uid IS NULL`,
		accountUID, fingerprint)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	migrated, err := result.RowsAffected()
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return account, int(migrated), nil
}

// ConsumeCredit атомарно списывает один trial-кредит. Для платных аккаунтов
// (credits_remaining IS NULL) списание не выполняется. Если кредиты
// закончились, возвращает models.ErrTrialExhausted.
func (s *Storage) ConsumeCredit(ctx context.Context, accountUID string) error {
	const op = "repository.ConsumeCredit"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE accounts
			  SET credits_remaining = credits_remaining - 1, updated_at = NOW()
			  WHERE uid = $1
			    AND credits_remaining IS NOT NULL
			    AND credits_remaining > 0`
	result, err := s.DB.ExecContext(ctx, query, accountUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected > 0 {
		return nil
	}

	// Либо аккаунт платный (безлимит), либо кредиты исчерпаны.
	var credits sql.NullInt64
	err = s.DB.QueryRowContext(ctx, `SELECT credits_remaining FROM accounts WHERE uid = $1`, accountUID).Scan(&credits)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !credits.Valid {
		return nil
	}
	return fmt.Errorf("%s: %w", op, models.ErrTrialExhausted)
}

// SoftDelete помечает аккаунт удалённым и возвращает время удаления.
func (s *Storage) SoftDelete(ctx context.Context, accountUID string) (time.Time, error) {
	const op = "repository.SoftDelete"
	select {
	case <-ctx.Done():
		return time.Time{}, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE accounts
			  SET status = $1, deleted_at = NOW(), updated_at = NOW()
			  WHERE uid = $2 AND status = $3
			  RETURNING deleted_at`
	var deletedAt time.Time
	err := s.DB.QueryRowContext(ctx, query, models.StatusDeleted, accountUID, models.StatusActive).Scan(&deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return deletedAt, nil
}

// Restore возвращает аккаунт в активное состояние, если он был удалён не
// раньше notBefore. Условие в самом запросе защищает от гонки с истечением
// льготного периода.
func (s *Storage) Restore(ctx context.Context, accountUID string, notBefore time.Time) (*models.Account, error) {
	const op = "repository.Restore"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE accounts
			  SET status = $1, deleted_at = NULL, updated_at = NOW()
			  WHERE uid = $2
			    AND status = $3
			    AND deleted_at IS NOT NULL
			    AND deleted_at > $4
			  RETURNING ` + accountColumns
	row := s.DB.QueryRowContext(ctx, query, models.StatusActive, accountUID, models.StatusDeleted, notBefore)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrAccountPermanentlyDeleted)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return account, nil
}

// UpsertEntitlement записывает каноническое состояние подписки в аккаунт
// одной транзакцией строки и отмечает время сверки.
func (s *Storage) UpsertEntitlement(ctx context.Context, accountUID string, state models.EntitlementState) error {
	const op = "repository.UpsertEntitlement"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE accounts
			  SET tier = $1,
			      plan = $2,
			      billing_period = $3,
			      credits_remaining = $4,
			      subscriber_ref = NULLIF($5, ''),
			      originating_platform = COALESCE($6, originating_platform),
			      last_entitlement_sync_at = NOW(),
			      updated_at = NOW()
			  WHERE uid = $7`
	result, err := s.DB.ExecContext(ctx, query,
		state.Tier, state.Plan, state.BillingPeriod, state.CreditsRemaining,
		state.SubscriberRef, state.Platform, accountUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
	}
	return nil
}

// CountTrialsByAddress возвращает число trial-аккаунтов, созданных с адреса
// за текущие сутки.
func (s *Storage) CountTrialsByAddress(ctx context.Context, address string) (int, error) {
	const op = "repository.CountTrialsByAddress"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT count FROM trial_address_limits
			  WHERE network_address = $1 AND date = CURRENT_DATE`
	var count int
	err := s.DB.QueryRowContext(ctx, query, address).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// IncrementTrialCounter увеличивает счётчик создания trial-аккаунтов с адреса.
// Счётчик допускает небольшую гонку (at-least-once) — это грубый
// антиабьюз-ограничитель, а не граница безопасности.
func (s *Storage) IncrementTrialCounter(ctx context.Context, address string) error {
	const op = "repository.IncrementTrialCounter"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO trial_address_limits (network_address, date, count)
			  VALUES ($1, CURRENT_DATE, 1)
			  ON CONFLICT (network_address, date)
			  DO UPDATE SET count = trial_address_limits.count + 1`
	if _, err := s.DB.ExecContext(ctx, query, address); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
