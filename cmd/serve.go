package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-menu-auth/app/controller"
	"github.com/vibast-solutions/ms-go-menu-auth/app/entity"
	menugrpc "github.com/vibast-solutions/ms-go-menu-auth/app/grpc"
	"github.com/vibast-solutions/ms-go-menu-auth/app/metrics"
	"github.com/vibast-solutions/ms-go-menu-auth/app/middleware"
	"github.com/vibast-solutions/ms-go-menu-auth/app/service"
	"github.com/vibast-solutions/ms-go-menu-auth/config"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  `Start the HTTP (Echo) server exposing the account and credential endpoints, and the gRPC health service.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewPrometheusRecorder(registry)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to register metrics")
	}

	credentials := newCredentialService(cfg, db, recorder)
	e := newHTTPServer(credentials, registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
	go func() {
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	grpcServer, healthServer := menugrpc.NewServer()
	go menugrpc.NewHealthMonitor(healthServer, db, cfg.GRPC.HealthCheckInterval).Run(ctx)
	go startGRPCServer(cfg, grpcServer)

	<-ctx.Done()
	logrus.Info("Shutting down servers")

	healthServer.Shutdown()
	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("HTTP server shutdown failed")
	}
}

func startGRPCServer(cfg *config.Config, grpcServer *grpc.Server) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	logrus.WithField("addr", grpcAddr).Info("Starting gRPC server")
	if err := grpcServer.Serve(lis); err != nil {
		logrus.WithError(err).Fatal("Failed to start gRPC server")
	}
}

func newHTTPServer(credentials service.CredentialService, gatherer prometheus.Gatherer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"request_id": v.RequestID,
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	accountController := controller.NewAccountAuthController(credentials)
	authMiddleware := middleware.NewAuthMiddleware(credentials)

	e.GET("/health", accountController.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	auth := e.Group("/auth")
	auth.POST("/register", accountController.Register)
	auth.POST("/login", accountController.Login)
	auth.POST("/verify-email", accountController.VerifyEmail)
	auth.GET("/verify-email", accountController.VerifyEmail)
	auth.POST("/forgot-password", accountController.ForgotPassword)
	auth.POST("/reset-password", accountController.ResetPassword)
	auth.POST("/resend-verification", accountController.ResendVerification)

	authProtected := auth.Group("")
	authProtected.Use(authMiddleware.RequireAuth)
	authProtected.GET("/me", accountController.Me)
	authProtected.GET("/accounts/:kind/:id", accountController.GetAccount, authMiddleware.RequireRole(entity.RoleAdmin))

	return e
}
