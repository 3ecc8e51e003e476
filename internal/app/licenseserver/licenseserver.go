package licenseserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"

	"github.com/magabrotheeeer/multiverse-license/internal/cache"
	"github.com/magabrotheeeer/multiverse-license/internal/config"
	grpcserver "github.com/magabrotheeeer/multiverse-license/internal/grpc/server"
	"github.com/magabrotheeeer/multiverse-license/internal/http/middlewarectx"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/jwt"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/multiverse-license/internal/metrics"
	"github.com/magabrotheeeer/multiverse-license/internal/migrations"
	"github.com/magabrotheeeer/multiverse-license/internal/paymentprovider"
	"github.com/magabrotheeeer/multiverse-license/internal/paymentprovider/mercadopago"
	"github.com/magabrotheeeer/multiverse-license/internal/paymentprovider/paypal"
	authservice "github.com/magabrotheeeer/multiverse-license/internal/services/auth"
	licenseservice "github.com/magabrotheeeer/multiverse-license/internal/services/license"
	resetservice "github.com/magabrotheeeer/multiverse-license/internal/services/passwordreset"
	paymentservice "github.com/magabrotheeeer/multiverse-license/internal/services/payment"
	subservice "github.com/magabrotheeeer/multiverse-license/internal/services/subscription"
	"github.com/magabrotheeeer/multiverse-license/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// App сервер лицензий: HTTP API и gRPC проверка здоровья.
type App struct {
	server     *http.Server
	grpcServer *grpc.Server
	grpcAddr   string
	health     *grpcserver.HealthServer
	logger     *slog.Logger
	db         *repository.Storage
	cache      *cache.Cache
	amqpConn   *amqp.Connection
	amqpCh     *amqp.Channel
}

// New подключает хранилище, кэш и брокер и собирает сервисы.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		db.Close()
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.Redis)
	if err != nil {
		db.Close()
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		cacheRedis.Close()
		db.Close()
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetMailQueues())
	if err != nil {
		conn.Close()
		cacheRedis.Close()
		db.Close()
		return nil, err
	}

	registry, secrets := newProviders(cfg)
	logger.Info("payment providers configured", slog.Any("providers", registry.Names()))

	jwtMaker := jwt.NewJWTMaker(cfg.JWTToken.SecretKey, cfg.JWTToken.AccessTTL, cfg.JWTToken.RefreshTTL)
	authService := authservice.NewAuthService(db, jwtMaker, cfg.IsAdminEmail)
	granted, err := authService.SeedAdmins(ctx, cfg.AdminEmails)
	if err != nil {
		ch.Close()
		conn.Close()
		cacheRedis.Close()
		db.Close()
		return nil, err
	}
	logger.Info("admin list applied", slog.Int("granted", granted))
	subscriptionService := subservice.NewSubscriptionService(db, db, registry, logger, cfg.IsAdminEmail, cfg.Payments.Timeout)
	licenseService := licenseservice.NewLicenseService(db, db, cfg.License.Period)
	paymentService := paymentservice.New(registry, subscriptionService, secrets, cfg.Payments.Timeout, logger).
		WithSignatureTolerance(cfg.Payments.SignatureTolerance)
	resetService := resetservice.New(db, cacheRedis, rabbitmq.NewPublisher(ch), resetservice.Config{
		TokenTTL:   cfg.PasswordReset.TokenTTL,
		BaseURL:    cfg.PasswordReset.BaseURL,
		MaxPerHour: cfg.PasswordReset.MaxPerHour,
	}, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Services{
		Auth:          authService,
		License:       licenseService,
		Subscription:  subscriptionService,
		Payment:       paymentService,
		PasswordReset: resetService,
		Storage:       db,
		Metrics:       metrics.New(prometheus.DefaultRegisterer),
		Limiter:       middlewarectx.NewRateLimiter(rate.Limit(cfg.HTTPServer.RateLimit), cfg.HTTPServer.RateBurst),
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	grpcSrv := grpc.NewServer()
	health := grpcserver.NewHealthServer(db, cfg.GRPCServer.HealthInterval, logger)
	health.Register(grpcSrv)

	return &App{
		server:     srv,
		grpcServer: grpcSrv,
		grpcAddr:   cfg.GRPCServer.Address,
		health:     health,
		logger:     logger,
		db:         db,
		cache:      cacheRedis,
		amqpConn:   conn,
		amqpCh:     ch,
	}, nil
}

// newProviders регистрирует провайдеров, для которых заданы учётные данные.
func newProviders(cfg *config.Config) (*paymentprovider.Registry, map[string]string) {
	var providers []paymentprovider.Provider
	secrets := make(map[string]string)
	if cfg.Payments.MercadoPago.AccessToken != "" {
		providers = append(providers, mercadopago.NewClient(cfg.Payments.MercadoPago, cfg.Payments.Timeout))
		secrets[mercadopago.Name] = cfg.Payments.MercadoPago.WebhookSecret
	}
	if cfg.Payments.PayPal.ClientID != "" {
		providers = append(providers, paypal.NewClient(cfg.Payments.PayPal, cfg.Payments.Timeout))
		secrets[paypal.Name] = cfg.Payments.PayPal.WebhookSecret
	}
	return paymentprovider.NewRegistry(providers...), secrets
}

// Run запускает серверы и блокируется до отмены ctx или ошибки одного из них.
func (a *App) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", a.grpcAddr)
	if err != nil {
		a.close()
		return err
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go a.health.Watch(watchCtx)

	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	go func() {
		a.logger.Info("gRPC server starting on", slog.String("address", a.grpcAddr))
		errCh <- a.grpcServer.Serve(lis)
	}()

	var runErr error
	select {
	case runErr = <-errCh:
		if runErr != nil {
			a.logger.Error("server stopped", slog.Any("err", runErr))
		}
	case <-ctx.Done():
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.logger.Info("shutting down servers gracefully")
	stopWatch()
	if err := a.server.Shutdown(timeoutCtx); err != nil && runErr == nil {
		runErr = err
	}
	a.grpcServer.GracefulStop()
	a.close()
	return runErr
}

func (a *App) close() {
	if err := a.amqpCh.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}
	if err := a.amqpConn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close redis", slog.Any("err", err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", slog.Any("err", err))
	}
}
