// Package signature проверяет HMAC-подписи входящих вебхуков платёжных провайдеров.
//
// Заголовок подписи имеет вид "ts=<timestamp>,v1=<hex hmac>". Подписывается
// сообщение timestamp || rawBody алгоритмом HMAC-SHA256 с общим секретом вебхука.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

// Header: разобранный заголовок подписи.
type Header struct {
	Timestamp string
	MAC       []byte
}

// Parse разбирает заголовок подписи на компоненты.
func Parse(header string) (*Header, error) {
	const op = "signature.Parse"
	if strings.TrimSpace(header) == "" {
		return nil, fmt.Errorf("%s: %w", op, models.ErrMissingSignature)
	}

	var h Header
	var macHex string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("%s: %w", op, models.ErrMalformedSignature)
		}
		switch strings.TrimSpace(key) {
		case "ts":
			h.Timestamp = strings.TrimSpace(value)
		case "v1":
			macHex = strings.TrimSpace(value)
		}
	}
	if h.Timestamp == "" || macHex == "" {
		return nil, fmt.Errorf("%s: %w", op, models.ErrMalformedSignature)
	}

	mac, err := hex.DecodeString(macHex)
	if err != nil || len(mac) != sha256.Size {
		return nil, fmt.Errorf("%s: %w", op, models.ErrMalformedSignature)
	}
	h.MAC = mac
	return &h, nil
}

// Verify проверяет, что заголовок подписи соответствует телу запроса и секрету.
// Сравнение выполняется за постоянное время.
func Verify(rawBody []byte, header, secret string) error {
	const op = "signature.Verify"
	h, err := Parse(header)
	if err != nil {
		return err
	}
	expected := compute(h.Timestamp, rawBody, secret)
	if !hmac.Equal(expected, h.MAC) {
		return fmt.Errorf("%s: %w", op, models.ErrSignatureMismatch)
	}
	return nil
}

// VerifyFresh дополнительно к Verify требует, чтобы метка ts (Unix-время в
// секундах) отличалась от now не больше чем на tolerance. Нулевой tolerance
// отключает проверку.
func VerifyFresh(rawBody []byte, header, secret string, now time.Time, tolerance time.Duration) error {
	const op = "signature.VerifyFresh"
	if err := Verify(rawBody, header, secret); err != nil {
		return err
	}
	if tolerance <= 0 {
		return nil
	}
	h, err := Parse(header)
	if err != nil {
		return err
	}
	sec, err := strconv.ParseInt(h.Timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", op, models.ErrMalformedSignature)
	}
	skew := now.Sub(time.Unix(sec, 0))
	if skew > tolerance || skew < -tolerance {
		return fmt.Errorf("%s: %w", op, models.ErrStaleSignature)
	}
	return nil
}

// Sign формирует заголовок подписи для тела запроса.
func Sign(rawBody []byte, timestamp, secret string) string {
	return "ts=" + timestamp + ",v1=" + hex.EncodeToString(compute(timestamp, rawBody, secret))
}

func compute(timestamp string, rawBody []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(rawBody)
	return mac.Sum(nil)
}
