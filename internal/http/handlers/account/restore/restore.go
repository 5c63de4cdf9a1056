// Package restore реализует HTTP-обработчик явного восстановления аккаунта
// в пределах льготного периода после мягкого удаления.
//
// Клиент передаёт удостоверение провайдера идентичности в заголовке
// Authorization; сессии для восстановления не требуется — сессии удалённого
// аккаунта отклоняются.
package restore

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/account-aggregator/internal/http/response"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/assertion"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/sl"
	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

// AccountFinder возвращает аккаунт по subject провайдера идентичности.
type AccountFinder interface {
	FindByExternalIdentityID(ctx context.Context, externalID string) (*models.Account, error)
}

// Service описывает интерфейс бизнес-логики восстановления.
type Service interface {
	CheckRestoreOrReject(ctx context.Context, account *models.Account) (*models.Account, error)
}

// Handler обрабатывает HTTP-запросы на восстановление аккаунта.
type Handler struct {
	log      *slog.Logger       // Логгер для записи операций и ошибок
	verifier assertion.Verifier // Проверка удостоверений провайдера идентичности
	accounts AccountFinder      // Поиск аккаунта по привязке
	service  Service            // Сервис бизнес-логики Lifecycle Manager
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, verifier assertion.Verifier, accounts AccountFinder, service Service) *Handler {
	return &Handler{
		log:      log,
		verifier: verifier,
		accounts: accounts,
		service:  service,
	}
}

// ServeHTTP godoc
// @Summary Восстановить удалённый аккаунт
// @Description Восстанавливает аккаунт, помеченный удалённым, если льготный период ещё не истёк. Активный аккаунт возвращается без изменений.
// @Tags Account
// @Produce  json
// @Param Authorization header string true "Bearer <удостоверение провайдера>"
// @Success 200 {object} response.Response{data=models.AccountSummary} "Восстановленный аккаунт"
// @Failure 401 {object} response.ErrorResponse "Удостоверение не прошло проверку"
// @Failure 403 {object} response.ErrorResponse "Льготный период истёк"
// @Failure 404 {object} response.ErrorResponse "Аккаунт не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /account/restore [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.account.restore"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("missing identity assertion"))
		return
	}

	ident, err := h.verifier.Verify(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		log.Info("rejected identity assertion", sl.Err(err))
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid identity assertion"))
		return
	}

	account, err := h.accounts.FindByExternalIdentityID(r.Context(), ident.Subject)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("account not found"))
			return
		}
		log.Error("failed to find account", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not restore account"))
		return
	}

	restored, err := h.service.CheckRestoreOrReject(r.Context(), account)
	if err != nil {
		if errors.Is(err, models.ErrAccountPermanentlyDeleted) {
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("account permanently deleted"))
			return
		}
		log.Error("failed to restore account", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not restore account"))
		return
	}

	log.Info("account restore handled", slog.String("account_uid", restored.UID))
	render.JSON(w, r, response.StatusOKWithData(restored.Summary()))
}
