// Package start реализует HTTP-обработчик выдачи trial-аккаунта анонимному
// устройству.
//
// Handler принимает JSON-запрос с отпечатком устройства, валидирует его
// и делегирует выдачу аккаунта сервису. Повторный запрос с тем же отпечатком
// идемпотентно возвращает уже существующий аккаунт.
package start

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

// Request — структура входных данных для выдачи trial-аккаунта.
type Request struct {
	DeviceFingerprint string `json:"device_fingerprint" validate:"required,min=8,max=128"`
}

// Handler обрабатывает HTTP-запросы на выдачу trial-аккаунта.
type Handler struct {
	log      *slog.Logger        // Логгер для записи операций и ошибок
	service  Service             // Сервис бизнес-логики Identity Resolver
	validate *validator.Validate // Валидатор для проверки входных данных
}

// Service описывает интерфейс бизнес-логики выдачи trial-аккаунтов.
type Service interface {
	ResolveOrCreateTrial(ctx context.Context, fingerprint, originAddress string) (*models.Account, error)
}

// New создает новый экземпляр Handler с указанными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Выдать trial-аккаунт устройству
// @Description Идемпотентно возвращает trial-аккаунт по отпечатку устройства. Новый аккаунт создаётся со стартовым грантом кредитов; создание ограничено потолком на сетевой адрес.
// @Tags Trial
// @Accept  json
// @Produce  json
// @Param request body Request true "Отпечаток устройства"
// @Success 200 {object} response.Response{data=models.AccountSummary} "Trial-аккаунт устройства"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 429 {object} response.ErrorResponse "Превышен потолок создания trial с адреса"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /trial [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.trial.start"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
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

	account, err := h.service.ResolveOrCreateTrial(r.Context(), req.DeviceFingerprint,
		middlewarectx.NetworkOrigin(r))
	if err != nil {
		if errors.Is(err, models.ErrRateLimited) {
			w.WriteHeader(http.StatusTooManyRequests)
			render.JSON(w, r, response.Error("trial creation limit reached"))
			return
		}
		log.Error("failed to resolve trial account", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not resolve trial account"))
		return
	}

	log.Info("trial account resolved", slog.String("account_uid", account.UID))
	render.JSON(w, r, response.StatusOKWithData(account.Summary()))
}
