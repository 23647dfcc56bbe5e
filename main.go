package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/scenecheck/internal/auth"
	"github.com/example/scenecheck/internal/config"
	"github.com/example/scenecheck/internal/grpchealth"
	"github.com/example/scenecheck/internal/handlers"
	"github.com/example/scenecheck/internal/imagefetch"
	"github.com/example/scenecheck/internal/inference"
	"github.com/example/scenecheck/internal/inference/gemini"
	"github.com/example/scenecheck/internal/logging"
	"github.com/example/scenecheck/internal/repository"
	"github.com/example/scenecheck/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	gin.SetMode(cfg.GinMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise application", zap.Error(err))
	}
	defer a.close()

	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			logger.Fatal("failed to listen for gRPC health", zap.Error(err), zap.String("addr", cfg.GRPCHealthAddr))
		}
		healthSrv := grpchealth.NewServer(a.repo, 10*time.Second, logger)
		go healthSrv.Watch(ctx)
		go func() {
			if err := healthSrv.Serve(lis); err != nil {
				logger.Error("gRPC health server stopped", zap.Error(err))
			}
		}()
		defer healthSrv.Stop()
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	logger.Info("scenecheck API listening",
		zap.String("addr", server.Addr),
		zap.String("auth_mode", cfg.Auth.Mode),
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("model", cfg.Inference.Model),
	)
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
	}
}

// app owns every long-lived resource shared between requests.
type app struct {
	db     *gorm.DB
	redis  *redis.Client
	repo   *repository.HistoryRepository
	router *gin.Engine
	logger *zap.Logger
}

// newApp wires the record store, cache, verifier, inference client and router.
// ctx bounds background work such as JWKS refreshes.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	a := &app{logger: logger}

	db, err := repository.OpenDatabase(initCtx, cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return nil, logging.NewOperationError("main.open_database", "", err)
	}
	a.db = db

	a.repo = repository.NewHistoryRepository(db, logger)
	if err := a.repo.AutoMigrate(initCtx); err != nil {
		a.close()
		return nil, logging.NewOperationError("main.auto_migrate", "", err)
	}

	var cache usecase.Cache
	if cfg.Redis.Addr != "" {
		a.redis, err = initRedis(initCtx, cfg.Redis)
		if err != nil {
			a.close()
			return nil, logging.NewOperationError("main.init_redis", "", err)
		}
		cache = usecase.NewRedisCache(a.redis)
	} else {
		logger.Info("history cache disabled")
	}

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		a.close()
		return nil, logging.NewOperationError("main.init_verifier", "", err)
	}

	provider, err := gemini.NewProvider(initCtx, gemini.Config{APIKey: cfg.Inference.APIKey}, logger)
	if err != nil {
		a.close()
		return nil, logging.NewOperationError("main.init_inference", "", err)
	}
	judge := inference.NewClient(provider, inference.Options{
		Model:      cfg.Inference.Model,
		Prompt:     cfg.Inference.Prompt,
		StagingDir: cfg.Inference.StagingDir,
		Timeout:    cfg.Inference.Timeout,
	}, logger)

	fetcher := imagefetch.NewFetcher(nil, cfg.Fetch.Timeout, cfg.Fetch.MaxBytes)
	uc := usecase.NewValidationUseCase(a.repo, fetcher, judge, cache, cfg.Redis.TTL, logger)

	a.router = handlers.NewRouter(handlers.RouterOptions{
		Service:        uc,
		AuthMiddleware: auth.Middleware(verifier, cfg.Auth.Timeout, logger),
		CORSOrigins:    cfg.CORSOrigins,
		Logger:         logger,
	})
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.logger.Warn("failed to close database", zap.Error(err))
			}
		}
	}
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, error) {
	switch cfg.Mode {
	case config.AuthModeHMAC:
		return auth.NewHMACVerifier(cfg.JWTSecret, cfg.GoogleClientID), nil
	default:
		return auth.NewGoogleVerifier(ctx, cfg.GoogleJWKSURL, cfg.GoogleClientID)
	}
}

func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
