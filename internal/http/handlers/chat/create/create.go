// Package create реализует HTTP-обработчик создания чата.
//
// Создание чата — операция, списывающая trial-кредит. Авторизованный запрос
// списывает кредит с аккаунта сессии; анонимный — с trial-аккаунта устройства,
// переданного в заголовке X-Device-Fingerprint.
package create

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/account-aggregator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/account-aggregator/internal/http/response"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/sl"
	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

// Service описывает интерфейс бизнес-логики создания чатов.
type Service interface {
	CreateForAccount(ctx context.Context, accountUID, title string) (string, error)
	CreateForDevice(ctx context.Context, fingerprint, title string) (string, error)
}

// Handler обрабатывает HTTP-запросы на создание чата.
type Handler struct {
	log      *slog.Logger        // Логгер для записи операций и ошибок
	service  Service             // Сервис бизнес-логики чатов
	validate *validator.Validate // Валидатор для проверки входных данных
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать чат
// @Description Создаёт чат, списывая один trial-кредит. Для платных аккаунтов списание не выполняется. Анонимный запрос обслуживается по заголовку X-Device-Fingerprint.
// @Tags Chats
// @Accept  json
// @Produce  json
// @Param X-Device-Fingerprint header string false "Отпечаток устройства для анонимного запроса"
// @Param request body models.DummyChat true "Данные нового чата"
// @Success 200 {object} response.Response "UID созданного чата"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Нет ни сессии, ни отпечатка устройства"
// @Failure 403 {object} response.ErrorResponse "Кредиты исчерпаны"
// @Failure 404 {object} response.ErrorResponse "Trial-аккаунт устройства не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /chats [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.chat.create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyChat
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	var (
		uid string
		err error
	)
	if accountUID, ok := middlewarectx.AccountFromContext(r.Context()); ok {
		uid, err = h.service.CreateForAccount(r.Context(), accountUID, req.Title)
	} else if fingerprint := r.Header.Get("X-Device-Fingerprint"); fingerprint != "" {
		uid, err = h.service.CreateForDevice(r.Context(), fingerprint, req.Title)
	} else {
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("session token or device fingerprint required"))
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, models.ErrTrialExhausted):
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("trial credits exhausted"))
		case errors.Is(err, models.ErrAccountNotFound):
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("account not found"))
		default:
			log.Error("failed to create chat", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not create chat"))
		}
		return
	}

	log.Info("chat created", slog.String("chat_uid", uid))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"chat_uid": uid,
	}))
}
