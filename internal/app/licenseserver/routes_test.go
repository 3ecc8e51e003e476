package licenseserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/multiverse-license/internal/http/middlewarectx"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/jwt"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/signature"
	"github.com/magabrotheeeer/multiverse-license/internal/metrics"
	"github.com/magabrotheeeer/multiverse-license/internal/migrations"
	"github.com/magabrotheeeer/multiverse-license/internal/models"
	"github.com/magabrotheeeer/multiverse-license/internal/paymentprovider"
	authservice "github.com/magabrotheeeer/multiverse-license/internal/services/auth"
	licenseservice "github.com/magabrotheeeer/multiverse-license/internal/services/license"
	resetservice "github.com/magabrotheeeer/multiverse-license/internal/services/passwordreset"
	paymentservice "github.com/magabrotheeeer/multiverse-license/internal/services/payment"
	subservice "github.com/magabrotheeeer/multiverse-license/internal/services/subscription"
	"github.com/magabrotheeeer/multiverse-license/internal/storage/repository"
)

const (
	webhookSecret = "whsec_test"
	fakeProvider  = "fakepay"
	fakeSigHeader = "x-signature"
)

// stubProvider платёжный провайдер с платежами в памяти.
type stubProvider struct {
	payments map[string]models.Payment
}

func (p *stubProvider) Name() string            { return fakeProvider }
func (p *stubProvider) SignatureHeader() string { return fakeSigHeader }

func (p *stubProvider) ParseEvent(body []byte) (*models.WebhookEvent, error) {
	var ev struct {
		Type string `json:"type"`
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &ev); err != nil || ev.Data.ID == "" {
		return nil, models.ErrMalformedEvent
	}
	return &models.WebhookEvent{Provider: fakeProvider, Kind: ev.Type, ResourceID: ev.Data.ID}, nil
}

func (p *stubProvider) Actionable(kind string) bool { return kind == "payment" }

func (p *stubProvider) FetchPayment(_ context.Context, id string) (*models.Payment, error) {
	pay, ok := p.payments[id]
	if !ok {
		return nil, models.ErrUpstream
	}
	return &pay, nil
}

func (p *stubProvider) CancelRecurring(context.Context, string) error { return nil }

func (p *stubProvider) CreateCheckout(_ context.Context, _ string, plan models.Plan) (string, error) {
	return "https://pay.example/checkout/" + plan.Name, nil
}

// memThrottle пропускает все запросы.
type memThrottle struct{}

func (memThrottle) Allow(context.Context, string, int, time.Duration) (bool, error) { return true, nil }

// mailbox запоминает опубликованные письма.
type mailbox struct {
	mu    sync.Mutex
	mails []models.PasswordResetMail
}

func (m *mailbox) Publish(_ context.Context, _ string, message any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mails = append(m.mails, message.(models.PasswordResetMail))
	return nil
}

func (m *mailbox) sent() []models.PasswordResetMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PasswordResetMail(nil), m.mails...)
}

type testServer struct {
	srv  *httptest.Server
	mail *mailbox
}

func setupStorage(t *testing.T) *repository.Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("licenses"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := repository.New(connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(db.DB, migrationsPath))
	return db
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	db := setupStorage(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	provider := &stubProvider{payments: map[string]models.Payment{
		"pay-1": {ID: "pay-1", Status: models.PaymentApproved, PayerEmail: "a@x.com", Plan: "mensual"},
	}}
	registry := paymentprovider.NewRegistry(provider)
	isAdmin := func(string) bool { return false }

	mail := &mailbox{}
	jwtMaker := jwt.NewJWTMaker("test-secret", 30*time.Minute, 720*time.Hour)
	authSvc := authservice.NewAuthService(db, jwtMaker, isAdmin)
	subSvc := subservice.NewSubscriptionService(db, db, registry, logger, isAdmin, time.Second)

	r := chi.NewRouter()
	RegisterRoutes(r, logger, Services{
		Auth:         authSvc,
		License:      licenseservice.NewLicenseService(db, db, 30*24*time.Hour),
		Subscription: subSvc,
		Payment: paymentservice.New(registry, subSvc, map[string]string{fakeProvider: webhookSecret},
			time.Second, logger),
		PasswordReset: resetservice.New(db, memThrottle{}, mail, resetservice.Config{
			TokenTTL:   time.Hour,
			BaseURL:    "https://multiverse.example/reset",
			MaxPerHour: 5,
		}, logger),
		Storage: db,
		Metrics: metrics.New(prometheus.NewRegistry()),
		Limiter: middlewarectx.NewRateLimiter(rate.Inf, 1),
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, mail: mail}
}

type envelope struct {
	Status string          `json:"status"`
	Error  string          `json:"error"`
	Data   json.RawMessage `json:"data"`
}

func (ts *testServer) do(t *testing.T, path, bearer string, body any, header http.Header) (int, envelope) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return ts.doRaw(t, path, bearer, raw, header)
}

func (ts *testServer) doRaw(t *testing.T, path, bearer string, raw []byte, header http.Header) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (ts *testServer) login(t *testing.T, email, password string) (string, string) {
	t.Helper()
	code, env := ts.do(t, "/token", "", map[string]string{"username": email, "password": password}, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tokens))
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	return tokens.AccessToken, tokens.RefreshToken
}

func TestRegisterPayActivateValidate(t *testing.T) {
	ts := setupServer(t)
	const machine = "machine-0001"

	code, env := ts.do(t, "/register", "", map[string]string{"email": "a@x.com", "password": "secret1"}, nil)
	require.Equal(t, http.StatusCreated, code, env.Error)

	access, refresh := ts.login(t, "a@x.com", "secret1")
	assert.NotEqual(t, access, refresh)

	code, env = ts.do(t, "/validate-license", access, map[string]string{"machine_id": machine}, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "no matching license", env.Error)

	code, _ = ts.do(t, "/license/activate", access, map[string]string{"machine_id": machine, "plan": "mensual"}, nil)
	assert.Equal(t, http.StatusForbidden, code, "activation without subscription")

	body := []byte(`{"type":"payment","data":{"id":"pay-1"}}`)
	tampered := http.Header{}
	tampered.Set(fakeSigHeader, signature.Sign(body, timestamp(), "wrong-secret"))
	code, _ = ts.doRaw(t, "/webhooks/"+fakeProvider, "", body, tampered)
	assert.Equal(t, http.StatusForbidden, code, "webhook with bad signature")

	signed := http.Header{}
	signed.Set(fakeSigHeader, signature.Sign(body, timestamp(), webhookSecret))
	code, env = ts.doRaw(t, "/webhooks/"+fakeProvider, "", body, signed)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = ts.do(t, "/license/activate", access, map[string]string{"machine_id": machine, "plan": "mensual"}, nil)
	require.Equal(t, http.StatusCreated, code, env.Error)
	var activated struct {
		MachineID string    `json:"machine_id"`
		Expires   time.Time `json:"expires"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &activated))
	assert.Equal(t, machine, activated.MachineID)
	assert.True(t, activated.Expires.After(time.Now()))

	code, env = ts.do(t, "/validate-license", access, map[string]string{"machine_id": machine}, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var validated struct {
		Status  string    `json:"status"`
		Expires time.Time `json:"expires"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &validated))
	assert.Equal(t, "valid", validated.Status)
	assert.WithinDuration(t, activated.Expires, validated.Expires, time.Second)

	// Повторная доставка того же уведомления не создаёт вторую подписку.
	code, _ = ts.doRaw(t, "/webhooks/"+fakeProvider, "", body, signed)
	assert.Equal(t, http.StatusOK, code)

	// Токен обновления не принимается вместо токена доступа.
	code, _ = ts.do(t, "/validate-license", refresh, map[string]string{"machine_id": machine}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = ts.do(t, "/token/refresh", "", map[string]string{"refresh_token": refresh}, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &refreshed))
	code, _ = ts.do(t, "/validate-license", refreshed.AccessToken, map[string]string{"machine_id": machine}, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestForgotPasswordFlow(t *testing.T) {
	ts := setupServer(t)

	code, env := ts.do(t, "/register", "", map[string]string{"email": "b@x.com", "password": "secret1"}, nil)
	require.Equal(t, http.StatusCreated, code, env.Error)

	code, unknown := ts.do(t, "/auth/forgot-password", "", map[string]string{"email": "nobody@x.com"}, nil)
	require.Equal(t, http.StatusAccepted, code)
	assert.Empty(t, ts.mail.sent())

	code, known := ts.do(t, "/auth/forgot-password", "", map[string]string{"email": "b@x.com"}, nil)
	require.Equal(t, http.StatusAccepted, code)
	assert.JSONEq(t, string(unknown.Data), string(known.Data), "response must not reveal whether the email exists")

	mails := ts.mail.sent()
	require.Len(t, mails, 1)
	assert.Equal(t, "b@x.com", mails[0].Email)
	assert.WithinDuration(t, time.Now().Add(time.Hour), mails[0].ExpiresAt, time.Minute)

	resetURL, err := url.Parse(mails[0].ResetURL)
	require.NoError(t, err)
	token := resetURL.Query().Get("token")
	require.NotEmpty(t, token)

	reset := map[string]string{"token": token, "new_password": "secret2"}
	code, env = ts.do(t, "/auth/reset-password", "", reset, nil)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, _ = ts.do(t, "/auth/reset-password", "", map[string]string{"token": token, "new_password": "secret3"}, nil)
	assert.Equal(t, http.StatusBadRequest, code, "token is single use")

	code, _ = ts.do(t, "/token", "", map[string]string{"username": "b@x.com", "password": "secret1"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	ts.login(t, "b@x.com", "secret2")
}

func timestamp() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

