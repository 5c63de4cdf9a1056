package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

func TestStorage_CreateTrialAccount(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	fingerprint := NewFingerprint()

	account, err := storage.CreateTrialAccount(ctx, fingerprint, 5)
	require.NoError(t, err)
	require.NotNil(t, account.DeviceFingerprint)
	assert.Equal(t, fingerprint, *account.DeviceFingerprint)
	assert.Equal(t, models.TierTrial, account.Tier)
	require.NotNil(t, account.CreditsRemaining)
	assert.Equal(t, 5, *account.CreditsRemaining)
	assert.Equal(t, models.StatusActive, account.Status)
	assert.Nil(t, account.ExternalIdentityID)

	// Повторная вставка того же отпечатка проигрывает гонку.
	_, err = storage.CreateTrialAccount(ctx, fingerprint, 5)
	assert.ErrorIs(t, err, models.ErrMigrationConflict)
}

func TestStorage_FindTrialByFingerprint(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	ctx := context.Background()

	t.Run("существующий trial-аккаунт находится", func(t *testing.T) {
		fingerprint := NewFingerprint()
		uid := factory.CreateTrialAccount(t, fingerprint, 5)

		account, err := storage.FindTrialByFingerprint(ctx, fingerprint)
		require.NoError(t, err)
		assert.Equal(t, uid, account.UID)
	})

	t.Run("неизвестный отпечаток", func(t *testing.T) {
		_, err := storage.FindTrialByFingerprint(ctx, NewFingerprint())
		assert.ErrorIs(t, err, models.ErrAccountNotFound)
	})

	t.Run("привязанный аккаунт по отпечатку не находится", func(t *testing.T) {
		fingerprint := NewFingerprint()
		uid := factory.CreateTrialAccount(t, fingerprint, 5)
		_, _, err := storage.MigrateTrial(ctx, uid, fingerprint, "google-find-1", defaultProfile(), 5)
		require.NoError(t, err)

		_, err = storage.FindTrialByFingerprint(ctx, fingerprint)
		assert.ErrorIs(t, err, models.ErrAccountNotFound)
	})
}

func TestStorage_MigrateTrial(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	verify := NewTestVerification(storage)
	ctx := context.Background()

	t.Run("чаты переносятся, кредиты сбрасываются на грант", func(t *testing.T) {
		fingerprint := NewFingerprint()
		uid := factory.CreateTrialAccount(t, fingerprint, 2)
		chat1 := factory.CreateDeviceChat(t, fingerprint, "first")
		chat2 := factory.CreateDeviceChat(t, fingerprint, "second")
		// Чужой чат переноситься не должен.
		otherChat := factory.CreateDeviceChat(t, NewFingerprint(), "other")

		account, migrated, err := storage.MigrateTrial(ctx, uid, fingerprint, "google-migrate-1", defaultProfile(), 5)
		require.NoError(t, err)
		assert.Equal(t, 2, migrated)
		require.NotNil(t, account.ExternalIdentityID)
		assert.Equal(t, "google-migrate-1", *account.ExternalIdentityID)
		require.NotNil(t, account.CreditsRemaining)
		assert.Equal(t, 5, *account.CreditsRemaining)

		verify.VerifyChatOwner(t, chat1, uid)
		verify.VerifyChatOwner(t, chat2, uid)

		var stranded int
		err = storage.DB.QueryRow("SELECT COUNT(*) FROM chats WHERE uid = $1 AND account_uid IS NULL", otherChat).Scan(&stranded)
		require.NoError(t, err)
		assert.Equal(t, 1, stranded)
	})

	t.Run("повторная привязка уже привязанного аккаунта", func(t *testing.T) {
		fingerprint := NewFingerprint()
		uid := factory.CreateTrialAccount(t, fingerprint, 5)
		_, _, err := storage.MigrateTrial(ctx, uid, fingerprint, "google-migrate-2", defaultProfile(), 5)
		require.NoError(t, err)

		_, _, err = storage.MigrateTrial(ctx, uid, fingerprint, "google-migrate-3", defaultProfile(), 5)
		assert.ErrorIs(t, err, models.ErrMigrationConflict)
	})

	t.Run("subject уже занят другим аккаунтом", func(t *testing.T) {
		factory.CreateRegisteredAccount(t, "google-taken", 5)
		fingerprint := NewFingerprint()
		uid := factory.CreateTrialAccount(t, fingerprint, 5)

		_, _, err := storage.MigrateTrial(ctx, uid, fingerprint, "google-taken", defaultProfile(), 5)
		assert.ErrorIs(t, err, models.ErrMigrationConflict)
	})
}

func TestStorage_ConsumeCredit(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	verify := NewTestVerification(storage)
	ctx := context.Background()

	t.Run("кредиты списываются до нуля, затем исчерпание", func(t *testing.T) {
		uid := factory.CreateTrialAccount(t, NewFingerprint(), 2)

		require.NoError(t, storage.ConsumeCredit(ctx, uid))
		require.NoError(t, storage.ConsumeCredit(ctx, uid))
		verify.VerifyCredits(t, uid, 0)

		err := storage.ConsumeCredit(ctx, uid)
		assert.ErrorIs(t, err, models.ErrTrialExhausted)
	})

	t.Run("платный аккаунт списанию не подлежит", func(t *testing.T) {
		uid := factory.CreatePaidAccount(t, "google-paid-consume", "individual", "monthly")

		require.NoError(t, storage.ConsumeCredit(ctx, uid))
		require.NoError(t, storage.ConsumeCredit(ctx, uid))
	})

	t.Run("несуществующий аккаунт", func(t *testing.T) {
		err := storage.ConsumeCredit(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, models.ErrAccountNotFound)
	})
}

func TestStorage_SoftDeleteAndRestore(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	verify := NewTestVerification(storage)
	ctx := context.Background()

	t.Run("удаление и восстановление внутри льготного периода", func(t *testing.T) {
		uid := factory.CreateRegisteredAccount(t, "google-restore-1", 5)

		deletedAt, err := storage.SoftDelete(ctx, uid)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now(), deletedAt, time.Minute)
		verify.VerifyAccountStatus(t, uid, "deleted")

		account, err := storage.Restore(ctx, uid, time.Now().Add(-30*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, account.Status)
		assert.Nil(t, account.DeletedAt)
		verify.VerifyAccountStatus(t, uid, "active")
	})

	t.Run("повторное удаление уже удалённого аккаунта", func(t *testing.T) {
		uid := factory.CreateRegisteredAccount(t, "google-restore-2", 5)
		_, err := storage.SoftDelete(ctx, uid)
		require.NoError(t, err)

		_, err = storage.SoftDelete(ctx, uid)
		assert.ErrorIs(t, err, models.ErrAccountNotFound)
	})

	t.Run("восстановление после истечения льготного периода", func(t *testing.T) {
		uid := factory.CreateRegisteredAccount(t, "google-restore-3", 5)
		factory.MarkDeleted(t, uid, time.Now().Add(-31*24*time.Hour))

		_, err := storage.Restore(ctx, uid, time.Now().Add(-30*24*time.Hour))
		assert.ErrorIs(t, err, models.ErrAccountPermanentlyDeleted)
		verify.VerifyAccountStatus(t, uid, "deleted")
	})

	t.Run("восстановление активного аккаунта", func(t *testing.T) {
		uid := factory.CreateRegisteredAccount(t, "google-restore-4", 5)

		_, err := storage.Restore(ctx, uid, time.Now().Add(-30*24*time.Hour))
		assert.ErrorIs(t, err, models.ErrAccountPermanentlyDeleted)
	})
}

func TestStorage_UpsertEntitlement(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	ctx := context.Background()

	t.Run("апгрейд до платного уровня", func(t *testing.T) {
		uid := factory.CreateTrialAccount(t, NewFingerprint(), 3)

		plan := "individual"
		period := "monthly"
		platform := "ios"
		err := storage.UpsertEntitlement(ctx, uid, models.EntitlementState{
			Tier:          models.TierPaid,
			Plan:          &plan,
			BillingPeriod: &period,
			SubscriberRef: "rc-sub-1",
			Platform:      &platform,
		})
		require.NoError(t, err)

		account, err := storage.GetAccount(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, models.TierPaid, account.Tier)
		require.NotNil(t, account.Plan)
		assert.Equal(t, "individual", *account.Plan)
		assert.Nil(t, account.CreditsRemaining)
		require.NotNil(t, account.SubscriberRef)
		assert.Equal(t, "rc-sub-1", *account.SubscriberRef)
		require.NotNil(t, account.LastEntitlementSyncAt)
	})

	t.Run("даунгрейд обратно в trial", func(t *testing.T) {
		uid := factory.CreatePaidAccount(t, "google-downgrade", "individual", "monthly")

		credits := 0
		err := storage.UpsertEntitlement(ctx, uid, models.EntitlementState{
			Tier:             models.TierTrial,
			CreditsRemaining: &credits,
		})
		require.NoError(t, err)

		account, err := storage.GetAccount(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, models.TierTrial, account.Tier)
		require.NotNil(t, account.CreditsRemaining)
		assert.Equal(t, 0, *account.CreditsRemaining)
	})

	t.Run("несуществующий аккаунт", func(t *testing.T) {
		err := storage.UpsertEntitlement(ctx, "00000000-0000-0000-0000-000000000000", models.EntitlementState{
			Tier: models.TierPaid,
		})
		assert.ErrorIs(t, err, models.ErrAccountNotFound)
	})
}

func TestStorage_FindByAccountRef(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	ctx := context.Background()

	t.Run("поиск по UID аккаунта", func(t *testing.T) {
		uid := factory.CreateRegisteredAccount(t, "google-ref-1", 5)

		account, err := storage.FindByAccountRef(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, uid, account.UID)
	})

	t.Run("поиск по subscriber_ref провайдера", func(t *testing.T) {
		uid := factory.CreatePaidAccount(t, "google-ref-2", "individual", "monthly")
		plan := "individual"
		err := storage.UpsertEntitlement(ctx, uid, models.EntitlementState{
			Tier:          models.TierPaid,
			Plan:          &plan,
			SubscriberRef: "rc-sub-ref-1",
		})
		require.NoError(t, err)

		account, err := storage.FindByAccountRef(ctx, "rc-sub-ref-1")
		require.NoError(t, err)
		assert.Equal(t, uid, account.UID)
	})

	t.Run("ссылка не в формате UUID не ломает запрос", func(t *testing.T) {
		_, err := storage.FindByAccountRef(ctx, "rc-unknown-subscriber")
		assert.ErrorIs(t, err, models.ErrAccountNotFound)
	})
}

func TestStorage_TrialAddressCounter(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	address := "203.0.113.77"

	count, err := storage.CountTrialsByAddress(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, storage.IncrementTrialCounter(ctx, address))
	require.NoError(t, storage.IncrementTrialCounter(ctx, address))

	count, err = storage.CountTrialsByAddress(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Другой адрес считается отдельно.
	count, err = storage.CountTrialsByAddress(ctx, "203.0.113.78")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestStorage_Sessions(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	verify := NewTestVerification(storage)
	ctx := context.Background()

	t.Run("создание и чтение сессии", func(t *testing.T) {
		accountUID := factory.CreateRegisteredAccount(t, "google-sess-1", 5)

		session, err := storage.CreateSession(ctx, accountUID, "iPhone 14 Pro", "203.0.113.10")
		require.NoError(t, err)
		assert.Equal(t, accountUID, session.AccountUID)
		assert.Equal(t, "iPhone 14 Pro", session.DeviceLabel)
		assert.False(t, session.Revoked)

		got, err := storage.GetSession(ctx, session.UID)
		require.NoError(t, err)
		assert.Equal(t, session.UID, got.UID)
	})

	t.Run("несуществующая сессия", func(t *testing.T) {
		_, err := storage.GetSession(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, models.ErrSessionNotFound)
	})

	t.Run("отзыв чужой сессии не проходит", func(t *testing.T) {
		ownerUID := factory.CreateRegisteredAccount(t, "google-sess-2", 5)
		strangerUID := factory.CreateRegisteredAccount(t, "google-sess-3", 5)
		sessionUID := factory.CreateSession(t, ownerUID, "MacBook")

		affected, err := storage.RevokeSession(ctx, strangerUID, sessionUID)
		require.NoError(t, err)
		assert.Equal(t, 0, affected)
		verify.VerifySessionRevoked(t, sessionUID, false)

		affected, err = storage.RevokeSession(ctx, ownerUID, sessionUID)
		require.NoError(t, err)
		assert.Equal(t, 1, affected)
		verify.VerifySessionRevoked(t, sessionUID, true)

		// Повторный отзыв уже отозванной сессии.
		affected, err = storage.RevokeSession(ctx, ownerUID, sessionUID)
		require.NoError(t, err)
		assert.Equal(t, 0, affected)
	})

	t.Run("отзыв всех сессий кроме текущей", func(t *testing.T) {
		accountUID := factory.CreateRegisteredAccount(t, "google-sess-4", 5)
		current := factory.CreateSession(t, accountUID, "iPhone")
		other1 := factory.CreateSession(t, accountUID, "iPad")
		other2 := factory.CreateSession(t, accountUID, "MacBook")

		affected, err := storage.RevokeAllSessions(ctx, accountUID, current)
		require.NoError(t, err)
		assert.Equal(t, 2, affected)

		verify.VerifySessionRevoked(t, current, false)
		verify.VerifySessionRevoked(t, other1, true)
		verify.VerifySessionRevoked(t, other2, true)
	})

	t.Run("пустой exceptUID отзывает все сессии", func(t *testing.T) {
		accountUID := factory.CreateRegisteredAccount(t, "google-sess-6", 5)
		first := factory.CreateSession(t, accountUID, "iPhone")
		second := factory.CreateSession(t, accountUID, "iPad")

		affected, err := storage.RevokeAllSessions(ctx, accountUID, "")
		require.NoError(t, err)
		assert.Equal(t, 2, affected)

		verify.VerifySessionRevoked(t, first, true)
		verify.VerifySessionRevoked(t, second, true)
	})

	t.Run("список сессий от новых к старым", func(t *testing.T) {
		accountUID := factory.CreateRegisteredAccount(t, "google-sess-5", 5)
		first := factory.CreateSession(t, accountUID, "iPhone")
		second := factory.CreateSession(t, accountUID, "iPad")

		require.NoError(t, storage.TouchSession(ctx, first))

		sessions, err := storage.ListSessions(ctx, accountUID)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, first, sessions[0].UID)
		assert.Equal(t, second, sessions[1].UID)
	})
}

func TestStorage_Chats(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	ctx := context.Background()

	t.Run("чат аккаунта создаётся и попадает в список", func(t *testing.T) {
		accountUID := factory.CreateRegisteredAccount(t, "google-chat-1", 5)

		uid, err := storage.CreateChat(ctx, models.Chat{AccountUID: &accountUID, Title: "hello"})
		require.NoError(t, err)
		require.NotEmpty(t, uid)

		chats, err := storage.ListChatsByAccount(ctx, accountUID, 10, 0)
		require.NoError(t, err)
		require.Len(t, chats, 1)
		assert.Equal(t, uid, chats[0].UID)
		assert.Equal(t, "hello", chats[0].Title)
	})

	t.Run("пагинация списка чатов", func(t *testing.T) {
		accountUID := factory.CreateRegisteredAccount(t, "google-chat-2", 5)
		for i := 0; i < 5; i++ {
			factory.CreateAccountChat(t, accountUID, "chat")
		}

		page, err := storage.ListChatsByAccount(ctx, accountUID, 2, 0)
		require.NoError(t, err)
		assert.Len(t, page, 2)

		rest, err := storage.ListChatsByAccount(ctx, accountUID, 10, 4)
		require.NoError(t, err)
		assert.Len(t, rest, 1)
	})

	t.Run("чаты устройства считаются по отпечатку", func(t *testing.T) {
		fingerprint := NewFingerprint()
		factory.CreateTrialAccount(t, fingerprint, 5)
		factory.CreateDeviceChat(t, fingerprint, "one")
		factory.CreateDeviceChat(t, fingerprint, "two")

		count, err := storage.CountChatsByFingerprint(ctx, fingerprint)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		count, err = storage.CountChatsByFingerprint(ctx, NewFingerprint())
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}
