package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/account-aggregator/internal/http/response"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/jwt"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/sl"
	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

// TokenParser проверяет подпись и срок действия токена сессии.
type TokenParser interface {
	ParseToken(tokenStr string) (*jwt.SessionClaims, error)
}

// SessionValidator проверяет, что сессия существует и не отозвана.
type SessionValidator interface {
	Validate(ctx context.Context, sessionUID string) (*models.Session, error)
}

// AccountGetter возвращает аккаунт по UID.
type AccountGetter interface {
	GetAccount(ctx context.Context, uid string) (*models.Account, error)
}

// SessionMiddleware проверяет токен сессии из заголовка Authorization,
// сверяет сессию с реестром и отклоняет запросы удалённых аккаунтов.
// Идентификаторы аккаунта и сессии кладутся в контекст запроса.
func SessionMiddleware(parser TokenParser, sessions SessionValidator,
	accounts AccountGetter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, ok := authenticate(w, r, parser, sessions, accounts, log)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalSessionMiddleware работает как SessionMiddleware, но пропускает
// запросы без заголовка Authorization: такие запросы обслуживаются по
// отпечатку устройства. Предъявленный токен всё равно проверяется строго.
func OptionalSessionMiddleware(parser TokenParser, sessions SessionValidator,
	accounts AccountGetter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx, ok := authenticate(w, r, parser, sessions, accounts, log)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(w http.ResponseWriter, r *http.Request, parser TokenParser,
	sessions SessionValidator, accounts AccountGetter, log *slog.Logger) (context.Context, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		writeAuthError(w, r, http.StatusUnauthorized, "missing or malformed authorization header")
		return nil, false
	}

	claims, err := parser.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		log.Info("rejected session token", sl.Err(err))
		writeAuthError(w, r, http.StatusUnauthorized, "invalid session token")
		return nil, false
	}

	if _, err := sessions.Validate(r.Context(), claims.SessionUID); err != nil {
		if errors.Is(err, models.ErrSessionRevoked) || errors.Is(err, models.ErrSessionNotFound) {
			writeAuthError(w, r, http.StatusUnauthorized, "session revoked")
			return nil, false
		}
		log.Error("failed to validate session", sl.Err(err))
		writeAuthError(w, r, http.StatusInternalServerError, "internal error")
		return nil, false
	}

	account, err := accounts.GetAccount(r.Context(), claims.AccountUID)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			writeAuthError(w, r, http.StatusUnauthorized, "account not found")
			return nil, false
		}
		log.Error("failed to load account", sl.Err(err))
		writeAuthError(w, r, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if account.IsDeleted() {
		writeAuthError(w, r, http.StatusForbidden, "account deleted")
		return nil, false
	}

	ctx := context.WithValue(r.Context(), AccountUID, claims.AccountUID)
	ctx = context.WithValue(ctx, SessionUID, claims.SessionUID)
	return ctx, true
}

func writeAuthError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	w.WriteHeader(status)
	render.JSON(w, r, response.Error(msg))
}
