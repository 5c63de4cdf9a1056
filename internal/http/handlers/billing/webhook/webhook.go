// Package webhook реализует HTTP-обработчик событий биллинг-провайдера.
//
// Подпись тела проверяется по HMAC-SHA256 из заголовка X-Api-Signature.
// Из payload берётся только ссылка на аккаунт: каноническое состояние
// подписки перечитывается у провайдера, поэтому повторная доставка события
// безопасна и возвращает 200.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/account-aggregator/internal/billingprovider"
	"github.com/magabrotheeeer/account-aggregator/internal/http/response"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/sl"
	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

// Service описывает интерфейс бизнес-логики синхронизации подписки.
type Service interface {
	ProcessWebhookEvent(ctx context.Context, payload *billingprovider.WebhookPayload) error
}

// Handler обрабатывает webhook-запросы биллинг-провайдера.
type Handler struct {
	log           *slog.Logger // Логгер для записи информации и ошибок
	service       Service      // Сервис бизнес-логики Entitlement Synchronizer
	webhookSecret string       // Секрет для проверки подписи
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: secret,
	}
}

// verifySignature сверяет подпись тела webhook из заголовка X-Api-Signature.
func (h *Handler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expectedSig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expectedSig), []byte(signature))
}

// ServeHTTP godoc
// @Summary Принять событие биллинг-провайдера
// @Description Проверяет подпись события и пересчитывает состояние подписки аккаунта, перечитав его у провайдера. Обработка идемпотентна: повторная доставка того же события возвращает 200.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param X-Api-Signature header string true "HMAC-SHA256 подпись тела"
// @Success 200 {object} response.Response "Событие обработано"
// @Failure 400 {object} response.ErrorResponse "Неверная подпись или некорректный payload"
// @Failure 500 {object} response.ErrorResponse "Ошибка синхронизации с провайдером"
// @Router /billing/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("could not read body"))
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	signature := r.Header.Get("X-Api-Signature")
	if signature == "" || !h.verifySignature(body, signature) {
		log.Error("invalid or missing webhook signature")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	var payload billingprovider.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid payload"))
		return
	}

	if err := h.service.ProcessWebhookEvent(r.Context(), &payload); err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			// Повторная доставка тоже не найдёт аккаунт, ретраи бессмысленны.
			log.Warn("webhook for unknown account",
				slog.String("event_type", payload.Event.Type))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("unknown account"))
			return
		}
		log.Error("failed to process webhook event", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not process event"))
		return
	}

	log.Info("webhook processed", slog.String("event_type", payload.Event.Type))
	render.JSON(w, r, response.StatusOKWithData(nil))
}
