// Package remove реализует HTTP-обработчик мягкого удаления аккаунта.
//
// Аккаунт помечается удалённым, его данные сохраняются на весь льготный
// период. Клиент может приложить повторное удостоверение провайдера
// идентичности — тогда оно сверяется с привязкой аккаунта.
package remove

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/account-aggregator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/account-aggregator/internal/http/response"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/assertion"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/sl"
	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

// Request — необязательное тело запроса с повторным удостоверением.
type Request struct {
	IdentityAssertion string `json:"identity_assertion,omitempty"`
}

// Service описывает интерфейс бизнес-логики удаления аккаунта.
type Service interface {
	SoftDelete(ctx context.Context, accountUID string) error
}

// AccountGetter возвращает аккаунт по UID.
type AccountGetter interface {
	GetAccount(ctx context.Context, uid string) (*models.Account, error)
}

// Handler обрабатывает HTTP-запросы на удаление аккаунта.
type Handler struct {
	log      *slog.Logger       // Логгер для записи операций и ошибок
	service  Service            // Сервис бизнес-логики Lifecycle Manager
	accounts AccountGetter      // Чтение аккаунта для сверки удостоверения
	verifier assertion.Verifier // Проверка повторного удостоверения
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service, accounts AccountGetter, verifier assertion.Verifier) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		accounts: accounts,
		verifier: verifier,
	}
}

// ServeHTTP godoc
// @Summary Удалить аккаунт
// @Description Помечает аккаунт удалённым с сохранением данных на льготный период. Платная подписка отменяется. Повторное удостоверение, если приложено, сверяется с привязкой аккаунта.
// @Tags Account
// @Security ApiKeyAuth
// @Accept  json
// @Produce  json
// @Param request body Request false "Повторное удостоверение"
// @Success 200 {object} response.Response "Аккаунт помечен удалённым"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Удостоверение не соответствует аккаунту"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /account [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.account.remove"
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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if req.IdentityAssertion != "" {
		if err := h.checkReauth(r.Context(), accountUID, req.IdentityAssertion); err != nil {
			log.Info("rejected delete reauthentication", sl.Err(err))
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("identity assertion does not match account"))
			return
		}
	}

	if err := h.service.SoftDelete(r.Context(), accountUID); err != nil {
		log.Error("failed to delete account", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not delete account"))
		return
	}

	log.Info("account deleted", slog.String("account_uid", accountUID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"account_uid": accountUID,
		"status":      models.StatusDeleted,
	}))
}

// checkReauth сверяет subject приложенного удостоверения с привязкой аккаунта.
func (h *Handler) checkReauth(ctx context.Context, accountUID, token string) error {
	ident, err := h.verifier.Verify(ctx, token)
	if err != nil {
		return err
	}
	account, err := h.accounts.GetAccount(ctx, accountUID)
	if err != nil {
		return err
	}
	if account.ExternalIdentityID == nil || *account.ExternalIdentityID != ident.Subject {
		return models.ErrInvalidIdentityAssertion
	}
	return nil
}
