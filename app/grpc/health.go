package grpc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the health service entry that follows the account store.
const ServiceName = "menu.auth.Credentials"

const (
	defaultCheckInterval = 15 * time.Second
	pingTimeout          = 3 * time.Second
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthMonitor struct {
	health   *health.Server
	db       Pinger
	interval time.Duration
}

func NewHealthMonitor(healthServer *health.Server, db Pinger, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &HealthMonitor{health: healthServer, db: db, interval: interval}
}

// Check pings the database once and publishes the result for ServiceName.
// The overall ("") status stays SERVING while the process is up.
func (m *HealthMonitor) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	servingStatus := healthpb.HealthCheckResponse_SERVING
	if err := m.db.PingContext(pingCtx); err != nil {
		logrus.WithError(err).Warn("Database ping failed, reporting NOT_SERVING")
		servingStatus = healthpb.HealthCheckResponse_NOT_SERVING
	}
	m.health.SetServingStatus(ServiceName, servingStatus)
	return servingStatus
}

// Run checks immediately and then on every interval until ctx is done.
func (m *HealthMonitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// NewServer builds the gRPC server with the standard health service
// registered and request logging installed.
func NewServer() (*gogrpc.Server, *health.Server) {
	server := gogrpc.NewServer(gogrpc.ChainUnaryInterceptor(LoggingUnaryInterceptor()))
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	return server, healthServer
}

func LoggingUnaryInterceptor() gogrpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *gogrpc.UnaryServerInfo, handler gogrpc.UnaryHandler) (any, error) {
		start := time.Now()
		res, err := handler(ctx, req)

		entry := logrus.WithFields(logrus.Fields{
			"method":     info.FullMethod,
			"code":       status.Code(err).String(),
			"latency":    time.Since(start).String(),
			"latency_ns": time.Since(start).Nanoseconds(),
		})
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Debug("grpc_request")
		return res, err
	}
}
