// Package revokeall реализует HTTP-обработчик массового отзыва сессий
// аккаунта, кроме текущей.
package revokeall

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/account-aggregator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/account-aggregator/internal/http/response"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/sl"
)

// Service описывает интерфейс бизнес-логики массового отзыва сессий.
type Service interface {
	RevokeAllExcept(ctx context.Context, accountUID, exceptSessionUID string) (int, error)
}

// Handler обрабатывает HTTP-запросы на массовый отзыв сессий.
type Handler struct {
	log     *slog.Logger // Логгер для записи операций и ошибок
	service Service      // Сервис бизнес-логики Session Registry
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Отозвать все сессии, кроме текущей
// @Description Помечает отозванными все сессии аккаунта, кроме сессии вызывающего. Возвращает число отозванных сессий.
// @Tags Sessions
// @Security ApiKeyAuth
// @Produce  json
// @Success 200 {object} response.Response "Число отозванных сессий"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /sessions/revoke-all [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session.revokeall"
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
	sessionUID, _ := middlewarectx.SessionFromContext(r.Context())

	revoked, err := h.service.RevokeAllExcept(r.Context(), accountUID, sessionUID)
	if err != nil {
		log.Error("failed to revoke sessions", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not revoke sessions"))
		return
	}

	log.Info("sessions revoked",
		slog.String("account_uid", accountUID), slog.Int("count", revoked))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"revoked_count": revoked,
	}))
}
