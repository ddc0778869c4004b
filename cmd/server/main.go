// Command server runs the tower construction backend: an HTTP API that feeds
// chat-room events through the per-room state machine, persists room state to
// SQLite, and drives the day-boundary scheduler.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-tower-backend/internal/config"
	httpapi "github.com/tbourn/go-tower-backend/internal/http"
	"github.com/tbourn/go-tower-backend/internal/http/handlers"
	"github.com/tbourn/go-tower-backend/internal/observability"
	"github.com/tbourn/go-tower-backend/internal/probe"
	"github.com/tbourn/go-tower-backend/internal/repo"
	"github.com/tbourn/go-tower-backend/internal/scheduler"
	"github.com/tbourn/go-tower-backend/internal/services"
	"github.com/tbourn/go-tower-backend/internal/sysutil"
	"github.com/tbourn/go-tower-backend/internal/tower"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing.
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	// Storage.
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	// Completion probe: remote when configured, permissive otherwise.
	var msgProbe tower.Probe = probe.AlwaysPresent{}
	if cfg.Probe.BaseURL != "" {
		client, err := probe.New(cfg.Probe)
		if err != nil {
			log.Fatal().Err(err).Msg("probe setup")
		}
		msgProbe = client
	} else if cfg.Tower.CheckDeletion {
		log.Warn().Msg("deletion check enabled without PROBE_BASE_URL; recorded messages are assumed present")
	}

	// Registry and services.
	store := httpapi.NewRoomStore()
	cad := scheduler.Cadence{Weekly: cfg.Cadence.WeeklyMode, ActiveDay: cfg.Cadence.ActiveDay}
	reg := services.NewRegistry(db, store, cfg.Tower, cad, notifierFromLog())
	if err := reg.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("load rooms")
	}
	svc := services.NewRoomService(db, store, reg, msgProbe, cfg.Tower)

	// Day-boundary scheduler. EndOfDay must run before the cadence flip so the
	// broadcast observes the enable flag as it was during the day.
	sched := scheduler.New()
	sched.Add(reg.EndOfDay)
	sched.Add(reg.ApplyCadence)
	sched.Add(func(ctx context.Context) error {
		return repo.PurgeExpiredUpdates(ctx, db, time.Now().UTC())
	})
	go sched.Run(ctx)

	// HTTP transport.
	r := gin.New()
	h := handlers.New(svc, svc, db, cfg.DedupeTTL)
	httpapi.RegisterRoutes(r, db, h, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// notifierFromLog reports room notifications through the structured log. The
// process that bridges notifications back to the chat platform tails these
// entries; an HTTP client consuming the API reads the same payloads from the
// event responses.
func notifierFromLog() services.Notifier {
	return services.NotifierFunc(func(ctx context.Context, roomID int64, note services.Notification) {
		log.Info().
			Int64("room_id", roomID).
			Str("kind", string(note.Kind)).
			Int("crash_index", note.CrashIndex).
			Msg("room notification")
	})
}
