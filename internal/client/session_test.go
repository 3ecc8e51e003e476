package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer имитирует сервер лицензий: один пользователь и одна машина.
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	write := func(w http.ResponseWriter, code int, body map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["username"] != "a@x.com" || req["password"] != "secret1" {
			write(w, http.StatusUnauthorized, map[string]any{"status": "Error", "error": "invalid credentials"})
			return
		}
		write(w, http.StatusOK, map[string]any{"status": "OK", "data": map[string]any{
			"access_token": "access-1", "refresh_token": "refresh-1",
		}})
	})
	mux.HandleFunc("/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["refresh_token"] != "refresh-1" {
			write(w, http.StatusUnauthorized, map[string]any{"status": "Error", "error": "invalid or expired token"})
			return
		}
		write(w, http.StatusOK, map[string]any{"status": "OK", "data": map[string]any{"access_token": "access-2"}})
	})
	mux.HandleFunc("/validate-license", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-2" {
			write(w, http.StatusUnauthorized, map[string]any{"status": "Error", "error": "invalid or expired token"})
			return
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["machine_id"] != "machine-1" {
			write(w, http.StatusNotFound, map[string]any{"status": "Error", "error": "no matching license"})
			return
		}
		write(w, http.StatusOK, map[string]any{"status": "OK", "data": map[string]any{"status": "valid", "expires": expires}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSession_LoginAndValidate(t *testing.T) {
	srv := fakeServer(t)
	store, err := NewTokenStore(filepath.Join(t.TempDir(), "refresh.token"), testKey(3))
	require.NoError(t, err)
	session := NewSession(NewAPI(srv.URL, 5*time.Second), store)
	ctx := context.Background()

	_, err = session.Validate(ctx, "machine-1")
	assert.ErrorIs(t, err, ErrNoToken)

	err = session.Login(ctx, "a@x.com", "wrong")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))

	require.NoError(t, session.Login(ctx, "a@x.com", "secret1"))
	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", saved)

	info, err := session.Validate(ctx, "machine-1")
	require.NoError(t, err)
	assert.Equal(t, "valid", info.Status)
	assert.Equal(t, 2030, info.Expires.Year())

	_, err = session.Validate(ctx, "machine-2")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "no matching license", apiErr.Message)

	require.NoError(t, session.Logout())
	_, err = session.AccessToken(ctx)
	assert.ErrorIs(t, err, ErrNoToken)
}
