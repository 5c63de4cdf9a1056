package chat

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) CreateChat(ctx context.Context, chat models.Chat) (string, error) {
	args := m.Called(ctx, chat)
	return args.String(0), args.Error(1)
}
func (m *RepoMock) ListChatsByAccount(ctx context.Context, accountUID string, limit, offset int) ([]*models.Chat, error) {
	args := m.Called(ctx, accountUID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Chat), args.Error(1)
}

type CreditsMock struct{ mock.Mock }

func (m *CreditsMock) ConsumeCredit(ctx context.Context, accountUID string) error {
	return m.Called(ctx, accountUID).Error(0)
}

type TrialsMock struct{ mock.Mock }

func (m *TrialsMock) FindTrialByFingerprint(ctx context.Context, fingerprint string) (*models.Account, error) {
	args := m.Called(ctx, fingerprint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestCreateForAccount(t *testing.T) {
	t.Run("кредит списывается до создания чата", func(t *testing.T) {
		repo := new(RepoMock)
		credits := new(CreditsMock)
		credits.On("ConsumeCredit", mock.Anything, "acc-1").Return(nil).Once()
		repo.On("CreateChat", mock.Anything, mock.MatchedBy(func(c models.Chat) bool {
			return c.AccountUID != nil && *c.AccountUID == "acc-1" && c.Title == "first chat"
		})).Return("chat-1", nil).Once()

		svc := New(repo, credits, new(TrialsMock), newNoopLogger())
		uid, err := svc.CreateForAccount(context.Background(), "acc-1", "first chat")

		assert.NoError(t, err)
		assert.Equal(t, "chat-1", uid)
		repo.AssertExpectations(t)
	})

	t.Run("исчерпанные кредиты не создают чат", func(t *testing.T) {
		repo := new(RepoMock)
		credits := new(CreditsMock)
		credits.On("ConsumeCredit", mock.Anything, "acc-1").
			Return(models.ErrTrialExhausted).Once()

		svc := New(repo, credits, new(TrialsMock), newNoopLogger())
		_, err := svc.CreateForAccount(context.Background(), "acc-1", "first chat")

		assert.ErrorIs(t, err, models.ErrTrialExhausted)
		repo.AssertNotCalled(t, "CreateChat", mock.Anything, mock.Anything)
	})
}

func TestCreateForDevice(t *testing.T) {
	repo := new(RepoMock)
	credits := new(CreditsMock)
	trials := new(TrialsMock)

	remaining := 5
	fp := "fp-device-0001"
	trials.On("FindTrialByFingerprint", mock.Anything, fp).
		Return(&models.Account{UID: "acc-trial", Tier: models.TierTrial,
			DeviceFingerprint: &fp, CreditsRemaining: &remaining,
			Status: models.StatusActive}, nil).Once()
	credits.On("ConsumeCredit", mock.Anything, "acc-trial").Return(nil).Once()
	repo.On("CreateChat", mock.Anything, mock.MatchedBy(func(c models.Chat) bool {
		return c.AccountUID == nil && c.DeviceFingerprint != nil && *c.DeviceFingerprint == fp
	})).Return("chat-1", nil).Once()

	svc := New(repo, credits, trials, newNoopLogger())
	uid, err := svc.CreateForDevice(context.Background(), fp, "anon chat")

	assert.NoError(t, err)
	assert.Equal(t, "chat-1", uid)
	repo.AssertExpectations(t)
	trials.AssertExpectations(t)
}

func TestListForAccount(t *testing.T) {
	repo := new(RepoMock)
	accountUID := "acc-1"
	repo.On("ListChatsByAccount", mock.Anything, "acc-1", 20, 0).
		Return([]*models.Chat{
			{UID: "chat-2", AccountUID: &accountUID, Title: "newer"},
			{UID: "chat-1", AccountUID: &accountUID, Title: "older"},
		}, nil).Once()

	svc := New(repo, new(CreditsMock), new(TrialsMock), newNoopLogger())
	chats, err := svc.ListForAccount(context.Background(), "acc-1", 20, 0)

	assert.NoError(t, err)
	assert.Len(t, chats, 2)
	assert.Equal(t, "chat-2", chats[0].UID)
}
