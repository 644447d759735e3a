// Package server wires the blog API together: storage, token and mail
// services, the HTTP and gRPC transports, and graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Chanzhaoyu/nest-blog-api/internal/logging"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/auth"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/config"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/mail"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/oauth"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/ratelimit"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/repositories/repomanager"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/rest"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/services"
	"github.com/Chanzhaoyu/nest-blog-api/internal/timex"

	gs "github.com/Chanzhaoyu/nest-blog-api/internal/server/grpc"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	redis  *redis.Client
	tokens *auth.TokenService
	http   *rest.Server
}

// NewApp connects to the database, applies migrations and builds every
// service from c.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.LogFormat, c.LogLevel)

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	notifier, err := newNotifier(c, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	clock := timex.SystemClock{}
	tokens := auth.NewTokenService([]byte(c.SecretKey), clock,
		auth.WithLifetimes(c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration))
	hasher := auth.NewArgon2Hasher()

	authService := services.NewAuthService(services.AuthDeps{
		DB:                   db,
		RepoManager:          rm,
		Tokens:               tokens,
		Hasher:               hasher,
		Notifier:             notifier,
		Clock:                clock,
		Logger:               logger.With("module", "auth"),
		OneTimeTokenValidity: c.OneTimeTokenValidityDuration,
	})

	var avatars services.AvatarStorage
	if c.S3Bucket != "" {
		avatars = services.NewS3AvatarStorage(c)
	}
	userService := services.NewUserService(db, rm, hasher, avatars, logger.With("module", "users"))

	app := &App{config: c, logger: logger, db: db, tokens: tokens}

	var limiter *ratelimit.Limiter
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		if err := app.redis.Ping(ctx).Err(); err != nil {
			logger.Warn(ctx, "redis unreachable, rate limits are not enforced until it is", "addr", c.RedisAddr, "error", err)
		}
		limiter = ratelimit.New(app.redis, logger.With("module", "ratelimit"))
	}

	var google oauth.Provider
	if c.GoogleClientID != "" {
		google = oauth.NewGoogleProvider(oauth.GoogleConfig{
			ClientID:     c.GoogleClientID,
			ClientSecret: c.GoogleClientSecret,
			CallbackURL:  c.GoogleCallbackURL,
		})
	}

	app.http = rest.NewServer(rest.Config{
		ClientURL:     c.ClientURL,
		SecureCookies: strings.HasPrefix(c.GoogleCallbackURL, "https://"),
		TrustProxy:    c.TrustProxy,
	}, rest.Deps{
		Auth:    authService,
		Users:   userService,
		Tokens:  tokens,
		Google:  google,
		Limiter: limiter,
		Clock:   clock,
		Logger:  logger.With("module", "http"),
	})

	return app, nil
}

func newNotifier(c *config.Config, logger logging.Logger) (mail.Notifier, error) {
	if c.MailHost == "" {
		logger.Warn(context.Background(), "MAIL_HOST not set, mail links are logged instead of sent")
		return mail.NewLogNotifier(c.ClientURL, logger.With("module", "mail")), nil
	}

	n, err := mail.NewSMTPNotifier(mail.SMTPConfig{
		Host:         c.MailHost,
		Port:         c.MailPort,
		Username:     c.MailUser,
		Password:     c.MailPassword,
		From:         c.MailFrom,
		ClientURL:    c.ClientURL,
		LinkValidity: c.OneTimeTokenValidityDuration,
	}, logger.With("module", "mail"))
	if err != nil {
		return nil, fmt.Errorf("mail init error: %w", err)
	}
	return n, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.tokens)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           app.http.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves HTTP and gRPC until ctx is cancelled or a signal arrives, then
// releases the database and Redis connections.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.close(context.Background())
}

func (app *App) close(ctx context.Context) {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error(ctx, "redis close", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
