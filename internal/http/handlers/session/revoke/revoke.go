// Package revoke реализует HTTP-обработчик отзыва одной сессии аккаунта.
//
// Отзыв собственной текущей сессии разрешён и работает как выход с устройства.
package revoke

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/account-aggregator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/account-aggregator/internal/http/response"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/sl"
	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

// Service описывает интерфейс бизнес-логики отзыва сессии.
type Service interface {
	Revoke(ctx context.Context, accountUID, sessionUID string) error
}

// Handler обрабатывает HTTP-запросы на отзыв сессии.
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
// @Summary Отозвать сессию
// @Description Помечает сессию аккаунта отозванной. Уже начатые запросы этой сессии доработают: отзыв действует с точностью до TTL кеша проверки.
// @Tags Sessions
// @Security ApiKeyAuth
// @Produce  json
// @Param uid path string true "UID сессии"
// @Success 200 {object} response.Response "Сессия отозвана"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Сессия не найдена"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /sessions/{uid} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session.revoke"
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

	sessionUID := chi.URLParam(r, "uid")
	if sessionUID == "" {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing session uid"))
		return
	}

	if err := h.service.Revoke(r.Context(), accountUID, sessionUID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("session not found"))
			return
		}
		log.Error("failed to revoke session", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not revoke session"))
		return
	}

	currentUID, _ := middlewarectx.SessionFromContext(r.Context())
	log.Info("session revoked", slog.String("session_uid", sessionUID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"revoked_uid":     sessionUID,
		"current_revoked": sessionUID == currentUID,
	}))
}
