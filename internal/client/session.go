package client

import (
	"context"
	"fmt"
)

// Session связывает API и локальное хранилище токена: после входа токен
// обновления сохраняется на диск, а каждый вызов с авторизацией получает
// свежий токен доступа без повторного ввода пароля.
type Session struct {
	api   *API
	store *TokenStore
}

// NewSession создает сессию.
func NewSession(api *API, store *TokenStore) *Session {
	return &Session{api: api, store: store}
}

// Login входит в систему и сохраняет токен обновления.
func (s *Session) Login(ctx context.Context, email, password string) error {
	const op = "client.Session.Login"
	tokens, err := s.api.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.Save(tokens.RefreshToken); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// AccessToken выпускает токен доступа по сохранённому токену обновления.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	const op = "client.Session.AccessToken"
	refresh, err := s.store.Load()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	access, err := s.api.Refresh(ctx, refresh)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return access, nil
}

// Validate проверяет лицензию этой машины.
func (s *Session) Validate(ctx context.Context, machineID string) (*LicenseInfo, error) {
	access, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.api.ValidateLicense(ctx, access, machineID)
}

// Activate активирует лицензию на этой машине.
func (s *Session) Activate(ctx context.Context, machineID, plan string) (*LicenseInfo, error) {
	access, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.api.ActivateLicense(ctx, access, machineID, plan)
}

// Logout удаляет сохранённый токен обновления.
func (s *Session) Logout() error {
	return s.store.Delete()
}
