package token

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Login(ctx context.Context, email, password string) (string, string, error) {
	args := m.Called(ctx, email, password)
	return args.String(0), args.String(1), args.Error(2)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestTokenHandler_ServeHTTP(t *testing.T) {
	form := url.Values{"username": {"a@x.com"}, "password": {"secret1"}}.Encode()

	tests := []struct {
		name           string
		contentType    string
		body           string
		setupMock      func(*ServiceMock)
		wantStatusCode int
		wantError      string
		wantTokens     bool
	}{
		{
			name:        "form login",
			contentType: "application/x-www-form-urlencoded",
			body:        form,
			setupMock: func(m *ServiceMock) {
				m.On("Login", mock.Anything, "a@x.com", "secret1").Return("acc", "ref", nil).Once()
			},
			wantStatusCode: http.StatusOK,
			wantTokens:     true,
		},
		{
			name:        "json login",
			contentType: "application/json",
			body:        `{"username":"a@x.com","password":"secret1"}`,
			setupMock: func(m *ServiceMock) {
				m.On("Login", mock.Anything, "a@x.com", "secret1").Return("acc", "ref", nil).Once()
			},
			wantStatusCode: http.StatusOK,
			wantTokens:     true,
		},
		{
			name:        "wrong password",
			contentType: "application/json",
			body:        `{"username":"a@x.com","password":"nope"}`,
			setupMock: func(m *ServiceMock) {
				m.On("Login", mock.Anything, "a@x.com", "nope").Return("", "", models.ErrInvalidCredentials).Once()
			},
			wantStatusCode: http.StatusUnauthorized,
			wantError:      "invalid credentials",
		},
		{
			name:           "missing password",
			contentType:    "application/json",
			body:           `{"username":"a@x.com"}`,
			wantStatusCode: http.StatusUnprocessableEntity,
			wantError:      "field Password is a required field",
		},
		{
			name:           "broken json",
			contentType:    "application/json",
			body:           `{`,
			wantStatusCode: http.StatusBadRequest,
			wantError:      "invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			if tt.setupMock != nil {
				tt.setupMock(svc)
			}
			handler := New(newNoopLogger(), svc, nil)

			req := httptest.NewRequest(http.MethodPost, "/token", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "reqid123"))
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			var got struct {
				Status string            `json:"status"`
				Error  string            `json:"error"`
				Data   map[string]string `json:"data"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			if tt.wantError != "" {
				assert.Contains(t, got.Error, tt.wantError)
			}
			if tt.wantTokens {
				assert.Equal(t, "acc", got.Data["access_token"])
				assert.Equal(t, "ref", got.Data["refresh_token"])
				assert.Equal(t, "bearer", got.Data["token_type"])
			}
			svc.AssertExpectations(t)
		})
	}
}
