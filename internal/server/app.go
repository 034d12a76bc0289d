// Package server wires the auth components together and runs them until the
// process is asked to stop: the HTTP API, the gRPC health endpoint and the
// expired refresh token cleanup worker.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/prashikshan/portal-auth/internal/logging"
	"github.com/prashikshan/portal-auth/internal/server/audit"
	"github.com/prashikshan/portal-auth/internal/server/auth"
	"github.com/prashikshan/portal-auth/internal/server/cleanup"
	"github.com/prashikshan/portal-auth/internal/server/config"
	"github.com/prashikshan/portal-auth/internal/server/lockout"
	"github.com/prashikshan/portal-auth/internal/server/password"
	"github.com/prashikshan/portal-auth/internal/server/ratelimit"
	"github.com/prashikshan/portal-auth/internal/server/repositories/repomanager"
	"github.com/prashikshan/portal-auth/internal/server/rest"
	"github.com/prashikshan/portal-auth/internal/server/services"

	gs "github.com/prashikshan/portal-auth/internal/server/grpc"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	userService *services.UserService
	tokens      *auth.TokenService
	limiter     ratelimit.Limiter

	redis *redis.Client
	nats  *nats.Conn
}

// NewApp opens the database, applies migrations and builds every service.
// Optional backends (Redis, NATS) fall back to in-process implementations
// when they are not configured.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel).With("service", "portal-auth")

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, c.StoreTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}

	app.tokens, err = auth.NewTokenService(auth.Config{
		AccessSecret:  []byte(c.SecretKey),
		RefreshSecret: []byte(c.RefreshSecretKey),
		AccessTTL:     c.AccessTokenValidityDuration,
		RefreshTTL:    c.RefreshTokenValidityDuration,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	hasher, err := password.NewMulti(c.PasswordAlgorithm, c.BcryptCost)
	if err != nil {
		app.Close()
		return nil, err
	}

	sink, err := app.auditSink()
	if err != nil {
		app.Close()
		return nil, err
	}
	app.limiter = app.rateLimiter(ctx)

	app.userService = services.NewUserService(db, rm, app.tokens, hasher,
		lockout.NewPolicy(c.MaxLoginAttempts, c.LockDuration),
		services.Options{
			RotateRefreshTokens: c.RotateRefreshTokens,
			StoreTimeout:        c.StoreTimeout,
			Audit:               sink,
			Logger:              logger,
		})

	return app, nil
}

func (app *App) auditSink() (audit.Sink, error) {
	if app.config.NATSURL == "" {
		return audit.NewLogSink(app.logger), nil
	}
	nc, err := audit.Connect(app.config.NATSURL, app.logger)
	if err != nil {
		return nil, fmt.Errorf("nats connect error: %w", err)
	}
	app.nats = nc
	return audit.NewNATSSink(nc, app.config.NATSSubjectPrefix, app.logger), nil
}

// rateLimiter prefers Redis so limits hold across replicas. An unreachable
// Redis at startup is not fatal; the limiter fails open per request.
func (app *App) rateLimiter(ctx context.Context) ratelimit.Limiter {
	c := app.config
	if c.RedisAddr == "" {
		return ratelimit.NewMemoryLimiter(c.RateLimitMax, c.RateLimitWindow)
	}
	app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	if err := app.redis.Ping(ctx).Err(); err != nil {
		app.logger.Warn(ctx, "redis ping failed", "addr", c.RedisAddr, "error", err.Error())
	}
	return ratelimit.NewRedisLimiter(app.redis, c.RateLimitMax, c.RateLimitWindow)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router := rest.NewRouter(rest.RouterConfig{
		Service:       app.userService,
		Tokens:        app.tokens,
		Limiter:       app.limiter,
		Logger:        app.logger,
		CORSOrigin:    app.config.CORSOrigin,
		SecureCookies: app.config.Production(),
		AccessTTL:     app.config.AccessTokenValidityDuration,
		RefreshTTL:    app.config.RefreshTokenValidityDuration,
		StaticDir:     app.config.StaticDir,
	})

	s := rest.NewServer(app.config.HTTPAddr, router, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server failed", "error", err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCHealth(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewHealthServer(app.config.GRPCHealthAddr, app.db, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "grpc health server failed", "error", err.Error())
		cancelFunc()
	}
}

// Run blocks until a termination signal arrives or a server fails, then
// waits for every component to stop and releases connections.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "http", app.config.HTTPAddr, "env", app.config.Environment)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.GRPCHealthAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCHealth(ctx, cancelFunc)
		}()
	}

	if app.config.CleanupInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cleanup.NewWorker(app.userService, app.config.CleanupInterval, app.logger).Run(ctx)
		}()
	}

	wg.Wait()
	app.Close()
	app.logger.Info(context.Background(), "app stopped")
}

// Close releases external connections. It is safe to call more than once.
func (app *App) Close() {
	if app.nats != nil {
		app.nats.Close()
		app.nats = nil
	}
	if app.redis != nil {
		_ = app.redis.Close()
		app.redis = nil
	}
	if app.db != nil {
		_ = app.db.Close()
		app.db = nil
	}
}
