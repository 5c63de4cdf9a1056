// Package verify реализует HTTP-обработчик ручной сверки состояния подписки
// с биллинг-провайдером — запасной путь для клиентов, не желающих ждать webhook.
package verify

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/account-aggregator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/account-aggregator/internal/http/response"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/sl"
	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

// Service описывает интерфейс бизнес-логики синхронизации подписки.
type Service interface {
	VerifyNow(ctx context.Context, accountUID string) (*models.EntitlementSummary, error)
}

// Handler обрабатывает HTTP-запросы ручной сверки подписки.
type Handler struct {
	log     *slog.Logger // Логгер для записи операций и ошибок
	service Service      // Сервис бизнес-логики Entitlement Synchronizer
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Сверить состояние подписки
// @Description Перечитывает каноническое состояние подписки у биллинг-провайдера и записывает его в аккаунт.
// @Tags Billing
// @Security ApiKeyAuth
// @Produce  json
// @Success 200 {object} response.Response{data=models.EntitlementSummary} "Актуальное состояние подписки"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка синхронизации с провайдером"
// @Router /billing/verify [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.verify"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	accountUID, ok := middlewarectx.AccountFromContext(r.Context())
	if !ok {
		log.Error("account uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	summary, err := h.service.VerifyNow(r.Context(), accountUID)
	if err != nil {
		log.Error("failed to verify entitlement", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not verify entitlement"))
		return
	}

	log.Info("entitlement verified", slog.String("account_uid", accountUID))
	render.JSON(w, r, response.StatusOKWithData(summary))
}
