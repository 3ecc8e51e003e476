// Package client реализует клиентскую часть лицензирования для настольного
// приложения: вызовы API сервера лицензий, хранение токена обновления в
// зашифрованном файле и вычисление идентификатора машины.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError ошибка, возвращённая сервером лицензий.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("license server: %d: %s", e.StatusCode, e.Message)
}

// IsStatus сообщает, что err: ответ сервера с кодом code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Tokens пара токенов, выданная при входе.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LicenseInfo состояние лицензии машины.
type LicenseInfo struct {
	Status    string    `json:"status"`
	MachineID string    `json:"machine_id"`
	Plan      string    `json:"plan"`
	Expires   time.Time `json:"expires"`
}

// API клиент HTTP API сервера лицензий.
type API struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPI создает клиента для сервера baseURL.
func NewAPI(baseURL string, timeout time.Duration) *API {
	return &API{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Register регистрирует учётную запись.
func (a *API) Register(ctx context.Context, email, password string) error {
	return a.call(ctx, "/register", "", map[string]string{"email": email, "password": password}, nil)
}

// Login обменивает email и пароль на пару токенов.
func (a *API) Login(ctx context.Context, email, password string) (*Tokens, error) {
	var out Tokens
	err := a.call(ctx, "/token", "", map[string]string{"username": email, "password": password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh выпускает новый токен доступа по токену обновления.
func (a *API) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var out Tokens
	if err := a.call(ctx, "/token/refresh", "", map[string]string{"refresh_token": refreshToken}, &out); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

// ValidateLicense проверяет лицензию машины machineID.
func (a *API) ValidateLicense(ctx context.Context, accessToken, machineID string) (*LicenseInfo, error) {
	var out LicenseInfo
	if err := a.call(ctx, "/validate-license", accessToken, map[string]string{"machine_id": machineID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActivateLicense активирует лицензию тарифа plan на машине machineID.
func (a *API) ActivateLicense(ctx context.Context, accessToken, machineID, plan string) (*LicenseInfo, error) {
	var out LicenseInfo
	body := map[string]string{"machine_id": machineID, "plan": plan}
	if err := a.call(ctx, "/license/activate", accessToken, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ForgotPassword запрашивает письмо со ссылкой сброса пароля.
func (a *API) ForgotPassword(ctx context.Context, email string) error {
	return a.call(ctx, "/auth/forgot-password", "", map[string]string{"email": email}, nil)
}

type envelope struct {
	Status string          `json:"status"`
	Error  string          `json:"error"`
	Data   json.RawMessage `json:"data"`
}

func (a *API) call(ctx context.Context, path, accessToken string, body, out any) error {
	const op = "client.API.call"
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: decode data: %w", op, err)
	}
	return nil
}
