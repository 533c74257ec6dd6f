package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsclient "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0xsj/overwatch-pkg/log"

	revocationgrpc "github.com/0xsj/overwatch-revocation/internal/adapter/inbound/grpc"
	natsconsumer "github.com/0xsj/overwatch-revocation/internal/adapter/inbound/nats"
	natsadapter "github.com/0xsj/overwatch-revocation/internal/adapter/outbound/nats"
	promadapter "github.com/0xsj/overwatch-revocation/internal/adapter/outbound/prometheus"
	"github.com/0xsj/overwatch-revocation/internal/app/command"
	"github.com/0xsj/overwatch-revocation/internal/app/query"
	"github.com/0xsj/overwatch-revocation/internal/app/registry"
	"github.com/0xsj/overwatch-revocation/internal/app/service"
	"github.com/0xsj/overwatch-revocation/internal/config"
	inboundquery "github.com/0xsj/overwatch-revocation/internal/port/inbound/query"
	"github.com/0xsj/overwatch-revocation/internal/port/outbound/messaging"
	"github.com/0xsj/overwatch-revocation/internal/port/outbound/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := log.NewPretty(log.DefaultConfig())

	logger.Info("starting revocation service",
		log.String("version", "1.0.0"),
		log.String("address", cfg.Server.Address()),
	)

	// Initialize metrics
	var recorder metrics.Recorder = metrics.Nop{}
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		promRecorder, err := promadapter.NewRecorder(promadapter.Options{})
		if err != nil {
			return fmt.Errorf("failed to create metrics recorder: %w", err)
		}
		recorder = promRecorder
		metricsServer = startMetricsServer(cfg.Metrics, logger)
	}

	// Connect to NATS (optional)
	var publisher messaging.EventPublisher = messaging.NopPublisher{}
	var natsConn *natsclient.Conn
	if cfg.NATS.Enabled() {
		natsConn, err = connectNATS(cfg.NATS, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		defer natsConn.Close()

		publisher = natsadapter.NewEventPublisher(natsConn, cfg.NATS.SubjectPrefix)
	}

	// Initialize revocation registry
	provider := registry.NewProvider(registry.ProviderConfig{
		Registry:  cfg.Registry,
		Redis:     cfg.Redis,
		Logger:    logger,
		Recorder:  recorder,
		Publisher: publisher,
	})
	defer func() {
		if err := provider.Close(); err != nil {
			logger.Error("failed to close revocation registry", log.String("error", err.Error()))
		}
	}()

	revocations, err := provider.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize revocation registry: %w", err)
	}

	// Initialize token verifier
	verifier, err := service.NewTokenVerifier(service.TokenConfig{
		Issuer:     cfg.Token.Issuer,
		Audience:   cfg.Token.Audience,
		SigningKey: []byte(cfg.Token.SigningKey),
	})
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}

	// Initialize command handlers
	revokeTokenHandler := command.NewRevokeTokenHandler(revocations)
	revokeAllUserTokensHandler := command.NewRevokeAllUserTokensHandler(
		revocations,
		cfg.Token.AccessTokenDuration,
	)

	// Initialize query handlers
	isTokenRevokedHandler := query.NewIsTokenRevokedHandler(revocations)
	getStatsHandler := query.NewGetRevocationStatsHandler(revocations)

	// Consume revocation commands
	if natsConn != nil {
		consumer := natsconsumer.NewCommandConsumer(
			natsConn,
			cfg.NATS.SubjectPrefix,
			revokeTokenHandler,
			revokeAllUserTokensHandler,
			logger,
		)
		if err := consumer.Start(); err != nil {
			return fmt.Errorf("failed to start command consumer: %w", err)
		}
		defer func() { _ = consumer.Stop() }()
	}

	// Initialize gRPC server
	serverCfg := revocationgrpc.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		EnableReflection:  cfg.Server.EnableReflection,
		EnableHealthCheck: cfg.Server.EnableHealthCheck,
	}

	handler := revocationgrpc.NewHandler(revocationgrpc.HandlerConfig{
		RevokeTokenHandler:         revokeTokenHandler,
		RevokeAllUserTokensHandler: revokeAllUserTokensHandler,
		IsTokenRevokedHandler:      isTokenRevokedHandler,
		GetRevocationStatsHandler:  getStatsHandler,
	})

	server, err := revocationgrpc.NewServer(serverCfg, verifier, isTokenRevokedHandler, logger, handler.Service())
	if err != nil {
		return fmt.Errorf("failed to create grpc server: %w", err)
	}

	// Report registry stats and health
	go reportStats(ctx, getStatsHandler, server, cfg.Metrics.StatsInterval, logger)

	// Handle graceful shutdown
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Run()
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("revocation service started",
		log.String("address", serverCfg.Address()),
		log.String("backend", string(revocations.Backend())),
	)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.Info("received shutdown signal", log.String("signal", sig.String()))
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}

		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("failed to stop metrics server", log.String("error", err.Error()))
			}
		}

		if natsConn != nil {
			if err := natsConn.Drain(); err != nil {
				logger.Warn("failed to drain nats connection", log.String("error", err.Error()))
			}
		}

		logger.Info("revocation service stopped gracefully")
		return nil
	}
}

func startMetricsServer(cfg config.MetricsConfig, logger log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", log.String("error", err.Error()))
		}
	}()

	logger.Info("serving metrics",
		log.String("address", cfg.Address),
		log.String("path", cfg.Path),
	)

	return srv
}

// reportStats refreshes the registry size gauge and marks the service
// unhealthy while the backend cannot be read.
func reportStats(
	ctx context.Context,
	handler inboundquery.GetRevocationStatsHandler,
	server *revocationgrpc.Server,
	interval time.Duration,
	logger log.Logger,
) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	check := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		result, err := handler.Handle(checkCtx, inboundquery.GetRevocationStats{})
		if err != nil {
			server.SetServing(false)
			return
		}
		server.SetServing(true)
		logger.Info("revocation registry stats",
			log.String("backend", result.Backend),
			log.Any("size", result.Stats.Size),
		)
	}

	check()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

func connectNATS(cfg config.NATSConfig, logger log.Logger) (*natsclient.Conn, error) {
	opts := []natsclient.Option{
		natsclient.Name("overwatch-revocation"),
		natsclient.MaxReconnects(cfg.MaxReconnects),
		natsclient.ReconnectWait(cfg.ReconnectWait),
		natsclient.DisconnectErrHandler(func(nc *natsclient.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", log.String("error", err.Error()))
			}
		}),
		natsclient.ReconnectHandler(func(nc *natsclient.Conn) {
			logger.Info("nats reconnected", log.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := natsclient.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	logger.Info("connected to nats",
		log.String("url", conn.ConnectedUrl()),
	)

	return conn, nil
}
