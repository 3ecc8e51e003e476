package client

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Ошибки локального хранилища токена.
var (
	ErrNoToken            = errors.New("no saved refresh token")
	ErrTokenUnreadable    = errors.New("saved refresh token cannot be decrypted")
	ErrInvalidTokenKey    = errors.New("token key must be 32 bytes, base64 encoded")
	errCiphertextTooShort = errors.New("ciphertext too short")
)

// KeySize длина ключа шифрования токена.
const KeySize = chacha20poly1305.KeySize

// LoadKey возвращает ключ шифрования токена. Если envKey не пуст, он
// разбирается как base64. Иначе ключ читается из keyPath, а при отсутствии
// файла генерируется и сохраняется туда с правами 0600.
func LoadKey(envKey, keyPath string) ([]byte, error) {
	const op = "client.LoadKey"
	if envKey != "" {
		key, err := decodeKey(envKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return key, nil
	}

	data, err := os.ReadFile(keyPath)
	if err == nil {
		key, err := decodeKey(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", op, keyPath, err)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := os.WriteFile(keyPath, []byte(base64.StdEncoding.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return key, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil || len(key) != KeySize {
		return nil, ErrInvalidTokenKey
	}
	return key, nil
}

// TokenStore хранит токен обновления в файле, зашифрованном XChaCha20-Poly1305.
type TokenStore struct {
	path string
	key  []byte
}

// NewTokenStore создает хранилище в файле path с ключом key.
func NewTokenStore(path string, key []byte) (*TokenStore, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidTokenKey
	}
	return &TokenStore{path: path, key: key}, nil
}

// Save шифрует и записывает токен. Файл перезаписывается атомарно.
func (s *TokenStore) Save(token string) error {
	const op = "client.TokenStore.Save"
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(token)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(token), nil)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(base64.StdEncoding.EncodeToString(sealed)), 0o600); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Load читает и расшифровывает токен. Нет файла: ErrNoToken, файл
// повреждён или ключ другой: ErrTokenUnreadable.
func (s *TokenStore) Load() (string, error) {
	const op = "client.TokenStore.Load"
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", op, ErrNoToken)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	sealed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrTokenUnreadable)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", fmt.Errorf("%s: %w: %w", op, ErrTokenUnreadable, errCiphertextTooShort)
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrTokenUnreadable)
	}
	return string(plain), nil
}

// Delete удаляет файл токена. Отсутствие файла ошибкой не считается.
func (s *TokenStore) Delete() error {
	const op = "client.TokenStore.Delete"
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
