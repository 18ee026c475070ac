package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tangled.org/agora.social/agora/internal/config"
	"tangled.org/agora.social/agora/internal/database/boltstore"
	"tangled.org/agora.social/agora/internal/database/gormstore"
	"tangled.org/agora.social/agora/internal/database/redisstore"
	"tangled.org/agora.social/agora/internal/database/sqlitestore"
	"tangled.org/agora.social/agora/internal/email"
	"tangled.org/agora.social/agora/internal/feed"
	"tangled.org/agora.social/agora/internal/handlers"
	"tangled.org/agora.social/agora/internal/metrics"
	"tangled.org/agora.social/agora/internal/middleware"
	"tangled.org/agora.social/agora/internal/moderation"
	"tangled.org/agora.social/agora/internal/routing"
	"tangled.org/agora.social/agora/internal/tracing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// store is what the server needs from a storage backend
type store interface {
	moderation.Store
	feed.Source
	Ping(ctx context.Context) error
	Close() error
}

// configureLogging sets the global level and output format
func configureLogging(level, format string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Use pretty console logging in development, JSON in production
	if format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	if cfg.DBDriver == config.DriverPostgres {
		s, err := gormstore.Connect(ctx, cfg.DatabaseURL, gormstore.Options{MaxOpenConns: 20})
		if err != nil {
			return nil, err
		}
		if err := s.RunMigrations(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	}
	s, err := sqlitestore.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// reportLimiter builds the configured limiter. The returned func releases
// whatever the limiter holds open.
func reportLimiter(ctx context.Context, cfg *config.Config, s store) (moderation.ReportLimiter, func(), error) {
	switch cfg.Limiter {
	case config.LimiterNone:
		return nil, func() {}, nil
	case config.LimiterBolt:
		bs, err := boltstore.Open(boltstore.Options{Path: cfg.LimiterPath})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", bs.Path()).Int("free_pages", bs.Stats().FreePageN).Msg("Report limiter database opened")
		l := bs.ReportLimiter(cfg.ReportLimit, cfg.ReportWindow)
		go pruneWindows(ctx, l, cfg.ReportWindow)
		return l, func() { bs.Close() }, nil
	case config.LimiterRedis:
		client, err := redisstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.NewReportLimiter(client, cfg.ReportLimit, cfg.ReportWindow), func() { client.Close() }, nil
	default:
		return moderation.NewStoreLimiter(s, cfg.ReportLimit, cfg.ReportWindow), func() {}, nil
	}
}

// pruneWindows drops expired bolt limiter windows once per window until ctx
// is done.
func pruneWindows(ctx context.Context, l *boltstore.ReportLimiter, every time.Duration) {
	if every <= 0 {
		every = moderation.DefaultReportWindow
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.Prune(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to prune report windows")
				continue
			}
			log.Debug().Int("removed", n).Msg("Pruned report windows")
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		configureLogging(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	configureLogging(cfg.LogLevel, cfg.LogFormat)

	log.Info().Msg("Starting Agora moderation service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEnabled {
		tp, err := tracing.Init(ctx, tracing.Options{
			Endpoint:    cfg.OTelEndpoint,
			SampleRatio: cfg.OTelSampleRatio,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracing")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Tracer shutdown failed")
			}
		}()
		log.Info().Str("endpoint", cfg.OTelEndpoint).Msg("Tracing enabled")
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("Failed to open database")
	}
	defer st.Close()
	log.Info().Str("driver", cfg.DBDriver).Msg("Database opened")

	roles := moderation.NewRoleService(st)
	if _, err := roles.SeedAdmins(ctx, cfg.BootstrapAdmins); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed bootstrap admins")
	}

	mod := moderation.NewModerationService(st, roles)
	limiter, closeLimiter, err := reportLimiter(ctx, cfg, st)
	if err != nil {
		log.Fatal().Err(err).Str("limiter", cfg.Limiter).Msg("Failed to initialize report limiter")
	}
	defer closeLimiter()
	if limiter != nil {
		mod.SetReportLimiter(limiter)
	}
	log.Info().
		Str("limiter", cfg.Limiter).
		Int("limit", cfg.ReportLimit).
		Dur("window", cfg.ReportWindow).
		Msg("Report limiter configured")

	blocks := moderation.NewBlockService(st)
	h := handlers.NewHandler(
		roles,
		mod,
		blocks,
		moderation.NewAdminService(st, roles, mod),
		feed.NewService(st, blocks),
	)
	h.SetHealthCheck(st.Ping)

	sender := email.NewSender(email.Config{
		Host:       cfg.SMTPHost,
		Port:       cfg.SMTPPort,
		User:       cfg.SMTPUser,
		Pass:       cfg.SMTPPass,
		From:       cfg.SMTPFrom,
		AdminEmail: cfg.AdminEmail,
	})
	if sender.Enabled() {
		h.SetReportNotifier(sender)
		log.Info().Str("host", cfg.SMTPHost).Msg("Report email notifications enabled")
	}

	metrics.StartCollector(ctx, metrics.StatsSource{
		OpenReports: mod.CountOpenReports,
		RoleCounts: func(ctx context.Context) (map[string]int, error) {
			counts, err := roles.CountByRole(ctx)
			if err != nil {
				return nil, err
			}
			out := make(map[string]int, len(counts))
			for role, n := range counts {
				out[string(role)] = n
			}
			return out, nil
		},
	}, cfg.MetricsInterval)

	verifier, err := middleware.NewVerifier(cfg.JWTSecret, cfg.JWTAudience)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize token verifier")
	}

	rateLimit := &middleware.RateLimitConfig{
		WriteLimiter:  middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute),
		GlobalLimiter: middleware.NewRateLimiter(cfg.RateLimitRPS*5, cfg.RateLimitBurst*5, 10*time.Minute),
	}
	rateLimit.WriteLimiter.StartSweeper(ctx, time.Minute)
	rateLimit.GlobalLimiter.StartSweeper(ctx, time.Minute)

	srv := &http.Server{
		Addr: "0.0.0.0:" + cfg.Port,
		Handler: routing.SetupRouter(routing.Config{
			Handlers:   h,
			Verifier:   verifier,
			Logger:     log.Logger,
			RateLimit:  rateLimit,
			TrustProxy: cfg.TrustProxy,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("address", srv.Addr).
			Str("url", "http://localhost:"+cfg.Port).
			Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
	}
	log.Info().Msg("Server stopped")
}
