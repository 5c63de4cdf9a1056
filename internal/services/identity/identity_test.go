package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) FindTrialByFingerprint(ctx context.Context, fingerprint string) (*models.Account, error) {
	args := m.Called(ctx, fingerprint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}
func (m *RepoMock) CreateTrialAccount(ctx context.Context, fingerprint string, credits int) (*models.Account, error) {
	args := m.Called(ctx, fingerprint, credits)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}
func (m *RepoMock) CountTrialsByAddress(ctx context.Context, address string) (int, error) {
	args := m.Called(ctx, address)
	return args.Int(0), args.Error(1)
}
func (m *RepoMock) IncrementTrialCounter(ctx context.Context, address string) error {
	return m.Called(ctx, address).Error(0)
}
func (m *RepoMock) ConsumeCredit(ctx context.Context, accountUID string) error {
	return m.Called(ctx, accountUID).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func trialAccount(uid string, credits int) *models.Account {
	fp := "fp-device-0001"
	return &models.Account{
		UID:               uid,
		DeviceFingerprint: &fp,
		Tier:              models.TierTrial,
		CreditsRemaining:  &credits,
		Status:            models.StatusActive,
	}
}

func TestResolveOrCreateTrial(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(r *RepoMock)
		wantUID    string
		wantErr    error
	}{
		{
			name: "повторный запрос возвращает существующий аккаунт",
			setupMocks: func(r *RepoMock) {
				r.On("FindTrialByFingerprint", mock.Anything, "fp-device-0001").
					Return(trialAccount("acc-1", 3), nil).Once()
			},
			wantUID: "acc-1",
		},
		{
			name: "новый аккаунт создаётся со стартовым грантом",
			setupMocks: func(r *RepoMock) {
				r.On("FindTrialByFingerprint", mock.Anything, "fp-device-0001").
					Return(nil, models.ErrAccountNotFound).Once()
				r.On("CountTrialsByAddress", mock.Anything, "203.0.113.7").
					Return(0, nil).Once()
				r.On("CreateTrialAccount", mock.Anything, "fp-device-0001", 5).
					Return(trialAccount("acc-2", 5), nil).Once()
				r.On("IncrementTrialCounter", mock.Anything, "203.0.113.7").
					Return(nil).Once()
			},
			wantUID: "acc-2",
		},
		{
			name: "потолок на адрес достигнут",
			setupMocks: func(r *RepoMock) {
				r.On("FindTrialByFingerprint", mock.Anything, "fp-device-0001").
					Return(nil, models.ErrAccountNotFound).Once()
				r.On("CountTrialsByAddress", mock.Anything, "203.0.113.7").
					Return(3, nil).Once()
			},
			wantErr: models.ErrRateLimited,
		},
		{
			name: "проигрыш гонки создания разрешается повторным поиском",
			setupMocks: func(r *RepoMock) {
				r.On("FindTrialByFingerprint", mock.Anything, "fp-device-0001").
					Return(nil, models.ErrAccountNotFound).Once()
				r.On("CountTrialsByAddress", mock.Anything, "203.0.113.7").
					Return(1, nil).Once()
				r.On("CreateTrialAccount", mock.Anything, "fp-device-0001", 5).
					Return(nil, models.ErrMigrationConflict).Once()
				r.On("FindTrialByFingerprint", mock.Anything, "fp-device-0001").
					Return(trialAccount("acc-winner", 5), nil).Once()
				r.On("IncrementTrialCounter", mock.Anything, "203.0.113.7").
					Return(nil).Once()
			},
			wantUID: "acc-winner",
		},
		{
			name: "ошибка хранилища пробрасывается",
			setupMocks: func(r *RepoMock) {
				r.On("FindTrialByFingerprint", mock.Anything, "fp-device-0001").
					Return(nil, errors.New("db error")).Once()
			},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)

			svc := New(repo, newNoopLogger(), 5, 3)
			account, err := svc.ResolveOrCreateTrial(context.Background(), "fp-device-0001", "203.0.113.7")

			if tt.wantUID != "" {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantUID, account.UID)
			} else {
				assert.Error(t, err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestResolveOrCreateTrial_IdempotentDoesNotCountTowardsCeiling(t *testing.T) {
	repo := new(RepoMock)
	repo.On("FindTrialByFingerprint", mock.Anything, "fp-device-0001").
		Return(trialAccount("acc-1", 2), nil)

	svc := New(repo, newNoopLogger(), 5, 3)
	for range 5 {
		account, err := svc.ResolveOrCreateTrial(context.Background(), "fp-device-0001", "203.0.113.7")
		assert.NoError(t, err)
		assert.Equal(t, "acc-1", account.UID)
	}
	// Счётчик по адресу не трогался: аккаунт уже существует.
	repo.AssertNotCalled(t, "CountTrialsByAddress", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "IncrementTrialCounter", mock.Anything, mock.Anything)
}

func TestConsumeCredit(t *testing.T) {
	repo := new(RepoMock)
	repo.On("ConsumeCredit", mock.Anything, "acc-1").Return(nil).Times(5)
	repo.On("ConsumeCredit", mock.Anything, "acc-1").Return(models.ErrTrialExhausted).Once()

	svc := New(repo, newNoopLogger(), 5, 3)
	for range 5 {
		assert.NoError(t, svc.ConsumeCredit(context.Background(), "acc-1"))
	}
	err := svc.ConsumeCredit(context.Background(), "acc-1")
	assert.ErrorIs(t, err, models.ErrTrialExhausted)
	repo.AssertExpectations(t)
}
