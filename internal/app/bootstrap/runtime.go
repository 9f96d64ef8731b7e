package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/shopmesh/auth/internal/adapters/cache"
	eventadapter "github.com/shopmesh/auth/internal/adapters/events"
	grpcadapter "github.com/shopmesh/auth/internal/adapters/grpc"
	httpadapter "github.com/shopmesh/auth/internal/adapters/http"
	"github.com/shopmesh/auth/internal/adapters/postgres"
	"github.com/shopmesh/auth/internal/adapters/security"
	"github.com/shopmesh/auth/internal/application"
	"github.com/shopmesh/auth/internal/domain"
	"github.com/shopmesh/auth/internal/ports"
)

// Runtime owns the wired service graph. The API and worker binaries
// share one constructor so both resolve config and dependencies the
// same way.
type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	outbox     *eventadapter.OutboxWorker
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).
		With("service", cfg.ServiceID)
	// Adapters and the application layer log through slog.Default.
	slog.SetDefault(logger)
	logger.Info("bootstrapping auth service",
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"signing_scheme", cfg.SigningScheme,
	)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := pool.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	closeStores := func() {
		_ = redisClient.Close()
		_ = sqlDB.Close()
	}

	signer, err := newSigner(cfg, logger)
	if err != nil {
		closeStores()
		return nil, err
	}

	var publisher ports.EventPublisher
	var kafkaPublisher *eventadapter.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err = eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if err != nil {
			closeStores()
			return nil, fmt.Errorf("init kafka publisher: %w", err)
		}
		publisher = kafkaPublisher
	} else {
		logger.Warn("no kafka brokers configured, outbox events will only be logged")
		publisher = eventadapter.NewLoggingPublisher(logger)
	}

	clients := make([]domain.ServiceClient, 0, len(cfg.Clients))
	for _, c := range cfg.Clients {
		clients = append(clients, domain.ServiceClient{ClientID: c.ClientID, SecretHash: c.SecretHash})
	}

	repos := postgres.NewRepositories(pool)
	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			Issuer:               cfg.Issuer,
			Audience:             cfg.Audience,
			AccessTokenTTL:       cfg.AccessTokenTTL,
			RefreshTokenTTL:      cfg.RefreshTokenTTL,
			ServiceTokenTTL:      cfg.ServiceTokenTTL,
			DeviceBinding:        cfg.DeviceBinding,
			DeviceSalt:           cfg.DeviceSalt,
			FailedLoginThreshold: cfg.FailedThreshold,
			LockoutDuration:      cfg.LockoutDuration,
			AllowUntrackedTokens: cfg.AllowUntrackedTokens,
		},
		Users:         repos.Users,
		Sessions:      repos.Sessions,
		LoginAttempts: repos.LoginAttempts,
		Outbox:        repos.Outbox,
		Lockouts:      cacheadapter.NewRedisLockoutStore(redisClient),
		Revocations:   cacheadapter.NewRedisRevocationStore(redisClient),
		Hasher:        security.NewBcryptHasher(cfg.BcryptCost),
		Signer:        signer,
		Clients:       clients,
	})

	router := httpadapter.NewRouter(httpadapter.NewHandler(svc))
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewAuthInternalServer(svc))

	outbox := eventadapter.NewOutboxWorker(
		logger,
		repos.Outbox,
		publisher,
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxClaimTTL,
		cfg.OutboxMaxRetries,
	)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		outbox:     outbox,
		cleanupFn: func(ctx context.Context) {
			if kafkaPublisher != nil {
				_ = kafkaPublisher.Close()
			}
			closeStores()
		},
	}, nil
}

// newSigner picks the token signer for the configured scheme. Missing
// rs256 keys fall back to an ephemeral keypair when allowed so local
// runs start without provisioning key material.
func newSigner(cfg Config, logger *slog.Logger) (ports.TokenSigner, error) {
	if cfg.SigningScheme == schemeHS256 {
		signer, err := security.NewHS256Signer(cfg.JWTHS256Secret)
		if err != nil {
			return nil, fmt.Errorf("init hs256 signer: %w", err)
		}
		return signer, nil
	}

	signer, err := security.NewRS256Signer(cfg.JWTKeyID, cfg.JWTPrivateKeyPEM, cfg.JWTPublicKeyPEM)
	if err != nil {
		if !cfg.AllowEphemeralJWT {
			return nil, fmt.Errorf("init rs256 signer: %w", err)
		}
		logger.Warn("rs256 keys missing or invalid, generating ephemeral keypair",
			"error", err,
		)
		signer, err = security.NewEphemeralRS256Signer(cfg.JWTKeyID)
		if err != nil {
			return nil, fmt.Errorf("init ephemeral rs256 signer: %w", err)
		}
	}
	return signer, nil
}

// RunAPI serves HTTP and gRPC until a shutdown signal or server failure.
// The gRPC listener binds here, not in NewRuntime, so the worker binary
// never holds the API ports.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen gRPC: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", grpcLis.Addr().String())
		if err := r.grpcServer.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

// RunWorker runs the outbox relay loop until a shutdown signal.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("outbox worker started",
		"poll_interval", r.cfg.OutboxPollInterval.String(),
		"batch_size", r.cfg.OutboxBatchSize,
	)
	err := r.outbox.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return nil
}
