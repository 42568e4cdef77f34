package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-contact-intake/internal/config"
	httpapi "github.com/tbourn/go-contact-intake/internal/http"
	"github.com/tbourn/go-contact-intake/internal/observability"
	"github.com/tbourn/go-contact-intake/internal/repo"
	"github.com/tbourn/go-contact-intake/internal/sysutil"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Run the contact intake HTTP server.

Configuration comes from the environment (see .env.example); the
--env-file files are loaded first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, rootCmd.Version)
	},
}

// serve builds the dependencies described by cfg and runs the server until
// ctx is cancelled. Missing optional stores only degrade the routes that
// need them.
func serve(ctx context.Context, cfg config.Config, version string) error {
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
		shutdownOTel = func(context.Context) error { return nil }
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	deps := httpapi.Deps{}

	if db, err := repo.OpenSQLite(cfg.DBPath); err != nil {
		log.Warn().Err(err).Str("path", cfg.DBPath).Msg("sqlite unavailable; db store disabled")
	} else if err := repo.AutoMigrate(db); err != nil {
		log.Warn().Err(err).Msg("sqlite migration failed; db store disabled")
	} else {
		deps.DB = db
	}

	if cfg.RedisURL != "" {
		rdb, err := repo.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable; kv store disabled")
		} else {
			defer rdb.Close()
			deps.Redis = rdb
		}
	}
	if cfg.RateLimit.Backend == "redis" && deps.Redis == nil {
		log.Warn().Msg("RATE_LIMIT_BACKEND=redis without a redis client; using in-memory limiter")
	}

	logMailConfig(cfg)

	r := gin.New()
	if err := httpapi.RegisterRoutes(r, deps, cfg); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// logMailConfig reports which mail backends are usable. Credentials are
// masked.
func logMailConfig(cfg config.Config) {
	usesSMTP := slices.Contains(cfg.ContactBackends, config.BackendSMTP)
	if usesSMTP && !cfg.SMTP.Configured() {
		log.Warn().Msg("smtp backend selected but SMTP_HOST/PORT/USER/PASS are incomplete")
	}
	if cfg.SMTP.Configured() {
		log.Info().
			Str("host", cfg.SMTP.Host).
			Int("port", cfg.SMTP.Port).
			Str("user", sysutil.MaskSecret(cfg.SMTP.User)).
			Bool("secure", cfg.SMTP.Secure).
			Msg("smtp configured")
	}
	if slices.Contains(cfg.ContactBackends, config.BackendResend) && cfg.Mail.ResendAPIKey == "" {
		log.Warn().Msg("resend backend selected but RESEND_API_KEY is empty")
	}
}
