package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/account-aggregator/internal/billingprovider"
	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

const testSecret = "webhook-test-secret"

type MockService struct{ mock.Mock }

func (m *MockService) ProcessWebhookEvent(ctx context.Context, payload *billingprovider.WebhookPayload) error {
	return m.Called(ctx, payload).Error(0)
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhookHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	body := `{"event":{"type":"INITIAL_PURCHASE","app_user_id":"acc-1"}}`

	tests := []struct {
		name           string
		body           string
		signature      string
		setupMock      func(*MockService)
		expectedStatus int
	}{
		{
			name:      "валидная подпись: событие обработано",
			body:      body,
			signature: sign(body),
			setupMock: func(m *MockService) {
				m.On("ProcessWebhookEvent", mock.Anything,
					mock.MatchedBy(func(p *billingprovider.WebhookPayload) bool {
						return p.Event.Type == "INITIAL_PURCHASE" && p.AccountRef() == "acc-1"
					})).Return(nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "неверная подпись отклоняется без обработки",
			body:           body,
			signature:      sign(body + "tampered"),
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "подпись отсутствует",
			body:           body,
			signature:      "",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "подписанный, но некорректный payload",
			body:           `{not json`,
			signature:      sign(`{not json`),
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:      "неизвестный аккаунт: ретраи бессмысленны",
			body:      body,
			signature: sign(body),
			setupMock: func(m *MockService) {
				m.On("ProcessWebhookEvent", mock.Anything, mock.Anything).
					Return(models.ErrAccountNotFound)
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:      "ошибка синхронизации с провайдером",
			body:      body,
			signature: sign(body),
			setupMock: func(m *MockService) {
				m.On("ProcessWebhookEvent", mock.Anything, mock.Anything).
					Return(assert.AnError)
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService, testSecret)

			req := httptest.NewRequest(http.MethodPost, "/billing/webhook", strings.NewReader(tt.body))
			if tt.signature != "" {
				req.Header.Set("X-Api-Signature", tt.signature)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestWebhookHandler_ReplayReturnsOK(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mockService := new(MockService)
	mockService.On("ProcessWebhookEvent", mock.Anything, mock.Anything).Return(nil).Twice()

	handler := New(logger, mockService, testSecret)
	body := `{"event":{"type":"RENEWAL","app_user_id":"acc-1"}}`

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/billing/webhook", strings.NewReader(body))
		req.Header.Set("X-Api-Signature", sign(body))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	mockService.AssertExpectations(t)
}
