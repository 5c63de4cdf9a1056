// Package middlewarectx содержит HTTP middleware и ключи контекста запроса.
package middlewarectx

import (
	"context"
	"net"
	"net/http"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// AccountUID — ключ для идентификатора аккаунта в контексте.
	AccountUID Key = "account_uid"
	// SessionUID — ключ для идентификатора сессии в контексте.
	SessionUID Key = "session_uid"
)

// AccountFromContext извлекает идентификатор аккаунта из контекста.
func AccountFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(AccountUID).(string)
	return uid, ok && uid != ""
}

// SessionFromContext извлекает идентификатор сессии из контекста.
func SessionFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(SessionUID).(string)
	return uid, ok && uid != ""
}

// NetworkOrigin возвращает адрес клиента без порта. Предполагается, что
// middleware.RealIP уже подставил адрес из X-Forwarded-For.
func NetworkOrigin(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
