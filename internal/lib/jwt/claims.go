// Package jwt реализует выпуск и парсинг сервисных токенов сессий.
//
// Токен выдаётся после привязки аккаунта и несёт в claims идентификаторы
// аккаунта и сессии. Maker определяет интерфейс для выпуска и проверки.
package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims описывает данные, хранящиеся в сервисном токене.
type SessionClaims struct {
	AccountUID           string `json:"account_uid"` // Идентификатор аккаунта
	SessionUID           string `json:"session_uid"` // Идентификатор сессии устройства
	jwt.RegisteredClaims        // Стандартные claims (ExpiresAt, IssuedAt и пр.)
}

// Maker описывает интерфейс для выпуска и парсинга токенов сессий.
type Maker interface {
	// GenerateToken выпускает токен для пары аккаунт/сессия.
	GenerateToken(accountUID, sessionUID string) (string, error)
	// ParseToken возвращает *SessionClaims, если токен корректен.
	ParseToken(tokenStr string) (*SessionClaims, error)
}

// MakerImpl реализует интерфейс Maker с использованием секретного ключа
// и времени жизни токена (TTL).
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
}

// NewMaker создаёт новый экземпляр MakerImpl.
func NewMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}
