// Package list реализует HTTP-обработчик выдачи списка чатов аккаунта.
package list

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/account-aggregator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/account-aggregator/internal/http/response"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/sl"
	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Service описывает интерфейс бизнес-логики выдачи чатов.
type Service interface {
	ListForAccount(ctx context.Context, accountUID string, limit, offset int) ([]*models.Chat, error)
}

// Handler обрабатывает HTTP-запросы на список чатов.
type Handler struct {
	log     *slog.Logger // Логгер для записи операций и ошибок
	service Service      // Сервис бизнес-логики чатов
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Список чатов аккаунта
// @Description Возвращает чаты аккаунта постранично, включая перенесённые при миграции trial-аккаунта.
// @Tags Chats
// @Security ApiKeyAuth
// @Produce  json
// @Param limit query int false "Размер страницы (по умолчанию 20)"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response{data=[]models.ChatView} "Чаты аккаунта"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /chats [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.chat.list"
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

	limit := queryInt(r, "limit", defaultLimit)
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	chats, err := h.service.ListForAccount(r.Context(), accountUID, limit, offset)
	if err != nil {
		log.Error("failed to list chats", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list chats"))
		return
	}

	views := make([]models.ChatView, 0, len(chats))
	for _, chat := range chats {
		views = append(views, chat.View())
	}

	log.Info("chats listed",
		slog.String("account_uid", accountUID), slog.Int("count", len(views)))
	render.JSON(w, r, response.StatusOKWithData(views))
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
