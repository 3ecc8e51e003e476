package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

// CustomClaims описывает данные, хранящиеся в JWT.
// Subject содержит email пользователя.
type CustomClaims struct {
	Type                 string `json:"type,omitempty"` // access или refresh
	jwt.RegisteredClaims        // Стандартные claims JWT (sub, exp, iat)
}

// Email возвращает email владельца токена.
func (c *CustomClaims) Email() string {
	return c.Subject
}

// GenerateAccessToken создает токен доступа со сроком жизни accessTTL.
func (j *MakerImpl) GenerateAccessToken(email string) (string, error) {
	return j.generate(email, TypeAccess, j.accessTTL)
}

// GenerateRefreshToken создает токен обновления со сроком жизни refreshTTL.
func (j *MakerImpl) GenerateRefreshToken(email string) (string, error) {
	return j.generate(email, TypeRefresh, j.refreshTTL)
}

func (j *MakerImpl) generate(email, tokenType string, ttl time.Duration) (string, error) {
	const op = "jwt.generate"
	now := j.now()
	claims := CustomClaims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return signed, nil
}

// ParseToken парсит JWT токен, проверяет подпись, алгоритм и срок действия.
//
// Истёкший токен возвращает ошибку, совместимую с models.ErrTokenExpired,
// любая другая проблема: models.ErrInvalidToken.
func (j *MakerImpl) ParseToken(tokenStr string) (*CustomClaims, error) {
	const op = "jwt.ParseToken"
	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return j.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrTokenExpired)
		}
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%s: %w", op, models.ErrInvalidToken)
	}
	return claims, nil
}
