// Package assertion реализует проверку удостоверений внешнего провайдера
// идентичности.
//
// Провайдер (email/password, OAuth-варианты) сам проверяет учётные данные и
// выпускает подписанное удостоверение с общим секретом. Здесь удостоверение
// только проверяется и приводится к единому виду IdentityAssertion —
// дальнейшая логика никогда не ветвится по типу провайдера.
package assertion

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/magabrotheeeer/account-aggregator/internal/models"
)

// Виды провайдеров идентичности, допустимые в удостоверении.
const (
	KindPassword = "password"
	KindGoogle   = "google"
	KindApple    = "apple"
)

// IdentityAssertion — закрытый размеченный вариант проверенного удостоверения.
type IdentityAssertion struct {
	Kind    string // Вид провайдера: password, google, apple
	Subject string // Стабильный subject провайдера идентичности
	Profile models.Profile
}

// Verifier описывает контракт проверки удостоверения.
type Verifier interface {
	// Verify проверяет подпись и срок действия удостоверения.
	// Возвращает models.ErrInvalidIdentityAssertion при любой неуспешной проверке.
	Verify(ctx context.Context, token string) (*IdentityAssertion, error)
}

type claims struct {
	Kind          string `json:"kind"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	AvatarURL     string `json:"avatar_url"`
	jwt.RegisteredClaims
}

// JWTVerifier проверяет удостоверения, подписанные общим секретом HS256.
type JWTVerifier struct {
	secret string
}

// NewJWTVerifier создаёт JWTVerifier с общим секретом провайдера.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify проверяет удостоверение и извлекает subject и поля профиля.
func (v *JWTVerifier) Verify(_ context.Context, tokenStr string) (*IdentityAssertion, error) {
	const op = "assertion.Verify"

	token, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(v.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, models.ErrInvalidIdentityAssertion)
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.Subject == "" {
		return nil, fmt.Errorf("%s: %w", op, models.ErrInvalidIdentityAssertion)
	}

	kind := c.Kind
	if kind == "" {
		kind = KindPassword
	}
	return &IdentityAssertion{
		Kind:    kind,
		Subject: c.Subject,
		Profile: models.Profile{
			Email:         c.Email,
			EmailVerified: c.EmailVerified,
			DisplayName:   c.Name,
			AvatarURL:     c.AvatarURL,
		},
	}, nil
}
