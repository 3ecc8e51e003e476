// Package jwt реализует выпуск и проверку JWT токенов доступа и обновления.
//
// Токен доступа живёт недолго (десятки минут) и подтверждает недавнюю аутентификацию,
// токен обновления живёт неделями и служит только для получения нового токена доступа.
// Оба подписываются симметричным алгоритмом HS256 общим секретом процесса.
package jwt

import (
	"time"
)

// Типы токенов, записываемые в claim "type".
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Maker описывает интерфейс для выпуска и разбора JWT токенов.
type Maker interface {
	// GenerateAccessToken выпускает токен доступа для email.
	GenerateAccessToken(email string) (string, error)
	// GenerateRefreshToken выпускает токен обновления для email.
	GenerateRefreshToken(email string) (string, error)
	// ParseToken проверяет подпись и срок действия и возвращает claims.
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl реализует Maker с использованием секретного ключа
// и времён жизни токенов.
type MakerImpl struct {
	secretKey  []byte           // Секретный ключ для подписи токенов.
	accessTTL  time.Duration    // Время жизни токена доступа.
	refreshTTL time.Duration    // Время жизни токена обновления.
	now        func() time.Time // Источник времени.
}

// NewJWTMaker создаёт новый экземпляр MakerImpl на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, accessTTL, refreshTTL time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey:  []byte(secretKey),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock подменяет источник времени, используется в тестах.
func (j *MakerImpl) WithClock(now func() time.Time) *MakerImpl {
	j.now = now
	return j
}
