package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/assessly/authcore/internal/audit"
	"github.com/assessly/authcore/internal/auth"
	"github.com/assessly/authcore/internal/cache"
	cachemem "github.com/assessly/authcore/internal/cache/memory"
	cacheredis "github.com/assessly/authcore/internal/cache/redis"
	"github.com/assessly/authcore/internal/config"
	"github.com/assessly/authcore/internal/domain/repository"
	authctrl "github.com/assessly/authcore/internal/http/controllers/auth"
	"github.com/assessly/authcore/internal/http/router"
	"github.com/assessly/authcore/internal/metrics"
	"github.com/assessly/authcore/internal/mfa"
	"github.com/assessly/authcore/internal/notify"
	"github.com/assessly/authcore/internal/observability/logger"
	"github.com/assessly/authcore/internal/rate"
	"github.com/assessly/authcore/internal/session"
	storemem "github.com/assessly/authcore/internal/store/memory"
	storepg "github.com/assessly/authcore/internal/store/pg"
	"github.com/assessly/authcore/internal/token"
	rdb "github.com/redis/go-redis/v9"
)

func serveCmd(cfgPath *string) *cobra.Command {
	var trustProxy bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			return serve(cfg, trustProxy)
		},
	}
	cmd.Flags().BoolVar(&trustProxy, "trust-proxy", false, "confiar en X-Forwarded-For para la IP del cliente")
	return cmd
}

func serve(cfg *config.Config, trustProxy bool) error {
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       "info",
		ServiceName: "authcore",
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	if err := metrics.Register(nil); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	ctx := context.Background()

	// --- cache ---
	var (
		c       cache.Cache
		rclient *rdb.Client
	)
	switch cfg.Cache.Kind {
	case "redis":
		rclient = rdb.NewClient(&rdb.Options{Addr: cfg.Cache.Redis.Addr, DB: cfg.Cache.Redis.DB})
		if err := rclient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		c = cacheredis.NewFromClient(rclient, cfg.Cache.Redis.Prefix)
		log.Info("cache: redis", logger.String("addr", cfg.Cache.Redis.Addr))
	default:
		c = cachemem.New(config.MustDuration(cfg.Cache.Memory.DefaultTTL))
		log.Info("cache: memory")
	}

	// --- user store ---
	var users repository.UserStore
	switch cfg.Storage.Driver {
	case "postgres":
		pg, err := storepg.New(ctx, cfg.Storage.Postgres.DSN, cfg.Storage.Postgres.MaxOpenConns)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pg.Close()
		users = pg
		log.Info("storage: postgres")
	default:
		users = storemem.New()
		log.Warn("storage: memory (los usuarios se pierden al reiniciar)")
	}

	// --- rate limiting ---
	var lockStore rate.Store
	if rclient != nil {
		lockStore = rate.NewRedisStore(rclient, cfg.Cache.Redis.Prefix+"lockout:")
	} else {
		lockStore = rate.NewMemoryStore()
	}
	loginLimiter := rate.NewLockout(lockStore, rate.Config{
		Threshold: cfg.Lockout.Login.Threshold,
		LockFor:   config.MustDuration(cfg.Lockout.Login.Duration),
	})
	mfaLimiter := rate.NewLockout(lockStore, rate.Config{
		Threshold: cfg.Lockout.MFA.Threshold,
		LockFor:   config.MustDuration(cfg.Lockout.MFA.Duration),
	})

	// --- notificaciones ---
	email := notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From,
		cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.TLS)
	var sms notify.SMSSender
	if cfg.SMS.Driver == "webhook" {
		sms = notify.NewWebhookSMS(cfg.SMS.WebhookURL, config.MustDuration(cfg.SMS.Timeout))
	} else {
		sms = notify.LogSMS{}
	}

	// --- core ---
	issuer, err := token.NewIssuer(token.IssuerConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		AccessTTL:  config.MustDuration(cfg.JWT.AccessTTL),
		RefreshTTL: config.MustDuration(cfg.JWT.RefreshTTL),
	})
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}

	svc := auth.NewService(auth.Deps{
		Users:    users,
		Issuer:   issuer,
		Sessions: session.NewManager(c, session.Config{
			TTL:        config.MustDuration(cfg.Session.TTL),
			BindOrigin: cfg.Session.BindOrigin,
		}),
		MFA: mfa.NewManager(c, users,
			notify.NewCodes(c, config.MustDuration(cfg.MFA.CodeTTL)),
			email, sms,
			mfa.Config{
				ChallengeTTL: config.MustDuration(cfg.MFA.ChallengeTTL),
				MaxAttempts:  cfg.MFA.MaxAttempts,
				TOTPWindow:   *cfg.MFA.TOTPWindow,
				BackupSet:    cfg.MFA.Backup.SetSize,
				BackupLow:    cfg.MFA.Backup.LowThreshold,
			}),
		Audit:             audit.NewSink(nil),
		LoginLimiter:      loginLimiter,
		MFALimiter:        mfaLimiter,
		TrustedDeviceSkip: cfg.MFA.TrustedDeviceSkip,
		Alerts:            email,
	})

	h := router.New(router.Deps{
		Auth:       authctrl.NewController(svc),
		TrustProxy: trustProxy,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Shutdown ordenado con SIGINT/SIGTERM.
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", logger.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-sigCtx.Done():
		log.Info("shutting down")
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			return err
		}
	}
	return nil
}
