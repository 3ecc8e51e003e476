// Package main Multiverse License API
//
// @title           Multiverse License API
// @version         1.0
// @description     API учётных записей, подписок и лицензий рабочих станций
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/magabrotheeeer/multiverse-license/internal/app/licenseserver"
	"github.com/magabrotheeeer/multiverse-license/internal/config"
	"github.com/magabrotheeeer/multiverse-license/internal/grpc/client"
	grpcserver "github.com/magabrotheeeer/multiverse-license/internal/grpc/server"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := sl.SetupLogger(cfg.Env, os.Stdout)

	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(healthcheck(cfg, logger))
	}

	logger.Info("starting license-server", slog.String("env", cfg.Env))
	logger.Debug("debug messages are enabled")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := licenseserver.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("license-server stopped gracefully")
}

// healthcheck опрашивает gRPC health запущенного сервера, для HEALTHCHECK контейнера.
func healthcheck(cfg *config.Config, logger *slog.Logger) int {
	addr := cfg.GRPCServer.Address
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	hc, err := client.NewHealthClient(addr)
	if err != nil {
		logger.Error("failed to create health client", sl.Err(err))
		return 1
	}
	defer hc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ok, err := hc.Serving(ctx, grpcserver.ServiceName)
	if err != nil {
		logger.Error("health check failed", sl.Err(err))
		return 1
	}
	if !ok {
		logger.Error("license-server is not serving")
		return 1
	}
	return 0
}
