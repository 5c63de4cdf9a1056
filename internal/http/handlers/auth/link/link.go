// Package link реализует HTTP-обработчик привязки удостоверения провайдера
// идентичности к аккаунту.
//
// В заголовке Authorization клиент передаёт удостоверение провайдера,
// в заголовке X-Device-Fingerprint — отпечаток устройства (если есть).
// После привязки обработчик регистрирует сессию устройства и возвращает
// токен сессии вместе с итоговым аккаунтом и числом перенесённых чатов.
package link

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/account-aggregator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/account-aggregator/internal/http/response"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/assertion"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/sl"
	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

// Request — необязательное тело запроса с описанием устройства.
type Request struct {
	DeviceLabel string `json:"device_label,omitempty"`
}

// Linker описывает интерфейс бизнес-логики привязки аккаунта.
type Linker interface {
	Link(ctx context.Context, ident *assertion.IdentityAssertion, fingerprint string) (*models.Account, int, error)
}

// SessionRegistrar регистрирует сессию устройства после привязки.
type SessionRegistrar interface {
	Create(ctx context.Context, accountUID, deviceLabel, networkOrigin string) (*models.Session, error)
}

// TokenMaker выпускает токен сессии.
type TokenMaker interface {
	GenerateToken(accountUID, sessionUID string) (string, error)
}

// Handler обрабатывает HTTP-запросы на привязку аккаунта.
type Handler struct {
	log      *slog.Logger       // Логгер для записи операций и ошибок
	verifier assertion.Verifier // Проверка удостоверений провайдера идентичности
	linker   Linker             // Сервис бизнес-логики Account Linker
	sessions SessionRegistrar   // Реестр сессий устройств
	maker    TokenMaker         // Выпуск токенов сессий
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, verifier assertion.Verifier, linker Linker,
	sessions SessionRegistrar, maker TokenMaker) *Handler {
	return &Handler{
		log:      log,
		verifier: verifier,
		linker:   linker,
		sessions: sessions,
		maker:    maker,
	}
}

// ServeHTTP godoc
// @Summary Привязать удостоверение к аккаунту
// @Description Проверяет удостоверение провайдера идентичности и привязывает его к аккаунту: повторный вход возвращает существующий аккаунт, trial-аккаунт устройства мигрируется вместе с чатами, иначе создаётся новый аккаунт. Регистрирует сессию устройства и возвращает её токен.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param Authorization header string true "Bearer <удостоверение провайдера>"
// @Param X-Device-Fingerprint header string false "Отпечаток устройства для миграции trial"
// @Param request body Request false "Описание устройства"
// @Success 200 {object} response.Response "Аккаунт, токен сессии и число перенесённых чатов"
// @Failure 401 {object} response.ErrorResponse "Удостоверение не прошло проверку"
// @Failure 403 {object} response.ErrorResponse "Аккаунт удалён безвозвратно"
// @Failure 409 {object} response.ErrorResponse "Конфликт конкурентной привязки"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /link [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.link"
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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	fingerprint := r.Header.Get("X-Device-Fingerprint")

	account, migrated, err := h.linker.Link(r.Context(), ident, fingerprint)
	if err != nil {
		if errors.Is(err, models.ErrAccountPermanentlyDeleted) {
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("account permanently deleted"))
			return
		}
		// Конфликт, переживший повторный поиск внутри сервиса.
		if errors.Is(err, models.ErrMigrationConflict) {
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("concurrent link in progress, retry"))
			return
		}
		log.Error("failed to link account", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not link account"))
		return
	}

	session, err := h.sessions.Create(r.Context(), account.UID, req.DeviceLabel,
		middlewarectx.NetworkOrigin(r))
	if err != nil {
		log.Error("failed to create session", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not create session"))
		return
	}

	token, err := h.maker.GenerateToken(account.UID, session.UID)
	if err != nil {
		log.Error("failed to generate session token", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not create session"))
		return
	}

	log.Info("account linked",
		slog.String("account_uid", account.UID),
		slog.Int("migrated_chats", migrated))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"account":        account.Summary(),
		"migrated_chats": migrated,
		"session_uid":    session.UID,
		"session_token":  token,
	}))
}
