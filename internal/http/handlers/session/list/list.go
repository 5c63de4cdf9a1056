// Package list реализует HTTP-обработчик выдачи списка сессий аккаунта.
package list

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

// Service описывает интерфейс бизнес-логики реестра сессий.
type Service interface {
	List(ctx context.Context, accountUID, currentSessionUID string) ([]models.SessionView, error)
}

// Handler обрабатывает HTTP-запросы на список сессий.
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
// @Summary Список сессий аккаунта
// @Description Возвращает все сессии аккаунта; сессия вызывающего помечена флагом current.
// @Tags Sessions
// @Security ApiKeyAuth
// @Produce  json
// @Success 200 {object} response.Response{data=[]models.SessionView} "Сессии аккаунта"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /sessions [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session.list"
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

	views, err := h.service.List(r.Context(), accountUID, sessionUID)
	if err != nil {
		log.Error("failed to list sessions", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list sessions"))
		return
	}

	log.Info("sessions listed",
		slog.String("account_uid", accountUID), slog.Int("count", len(views)))
	render.JSON(w, r, response.StatusOKWithData(views))
}
