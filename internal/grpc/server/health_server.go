// Package server реализует gRPC-сервер проверки здоровья сервиса лицензий.
//
// HealthServer публикует стандартный сервис grpc.health.v1.Health и
// периодически проверяет доступность базы данных: пока база отвечает,
// статус SERVING, иначе NOT_SERVING.
package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/magabrotheeeer/multiverse-license/internal/lib/sl"
)

// ServiceName имя сервиса, под которым публикуется статус.
const ServiceName = "multiverse.license.v1.LicenseServer"

const pingTimeout = 2 * time.Second

// Pinger проверяет доступность базы данных.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer gRPC-сервер здоровья.
type HealthServer struct {
	health   *health.Server
	storage  Pinger
	interval time.Duration
	log      *slog.Logger
}

// NewHealthServer создает новый экземпляр HealthServer. До первой проверки
// базы статус NOT_SERVING.
func NewHealthServer(storage Pinger, interval time.Duration, logger *slog.Logger) *HealthServer {
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{
		health:   h,
		storage:  storage,
		interval: interval,
		log:      logger,
	}
}

// Register регистрирует сервис здоровья на gRPC-сервере.
func (s *HealthServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
}

// Check проверяет базу один раз и обновляет статус.
func (s *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.storage.Ping(ctx); err != nil {
		s.log.Warn("database ping failed", sl.Err(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Watch проверяет базу с периодом interval до отмены ctx, после чего
// переводит все сервисы в NOT_SERVING.
func (s *HealthServer) Watch(ctx context.Context) {
	s.Check(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}
