// Command server runs the PST admin backend HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	_ "github.com/tbourn/pst-admin-backend/docs"
	"github.com/tbourn/pst-admin-backend/internal/auth"
	"github.com/tbourn/pst-admin-backend/internal/config"
	httpapi "github.com/tbourn/pst-admin-backend/internal/http"
	"github.com/tbourn/pst-admin-backend/internal/observability"
	"github.com/tbourn/pst-admin-backend/internal/realtime"
	"github.com/tbourn/pst-admin-backend/internal/repo"
	"github.com/tbourn/pst-admin-backend/internal/scheduler"
	"github.com/tbourn/pst-admin-backend/internal/services"
	"github.com/tbourn/pst-admin-backend/internal/storage"
	"github.com/tbourn/pst-admin-backend/internal/sysutil"
	"github.com/tbourn/pst-admin-backend/internal/whatsapp"
)

// @title                       PST Admin Backend API
// @version                     1.0
// @description                 Staff console API for the PST service desk: WhatsApp conversations, visitors, surveys, message templates and notifications.
// @BasePath                    /api/v1
//
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the session token.
func main() {
	// .env is optional; real deployments inject the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		sysutil.SetupLogger(os.Stderr, "info", false, "pst-admin-backend")
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	gin.SetMode(cfg.GinMode)

	ctx, stop := sysutil.SignalContext(context.Background())
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	version := sysutil.Version()
	shutdownOTel, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}
	if n, err := repo.NormalizeLegacyTimestamps(ctx, db); err != nil {
		log.Warn().Err(err).Msg("timestamp normalization failed")
	} else if n > 0 {
		log.Info().Int64("rows", n).Msg("normalized legacy message timestamps")
	}

	hub, err := realtime.Open(ctx, cfg.Realtime)
	if err != nil {
		return err
	}
	defer hub.Close()

	media, err := storage.NewOS(cfg.Storage)
	if err != nil {
		return err
	}

	authSvc := services.NewAuthService(db, auth.NewIssuer(cfg.Auth))

	deps := httpapi.Deps{DB: db, Hub: hub, Media: media, Auth: authSvc}
	if wa := whatsapp.New(cfg.WhatsApp); wa.Configured() {
		deps.Gateway = wa
	} else {
		log.Warn().Msg("whatsapp gateway not configured; outbound sends will fail")
	}

	sched, err := scheduler.New(cfg.PurgeInterval, scheduler.PurgeJobs(db, authSvc)...)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Warn().Err(err).Msg("scheduler stop")
		}
	}()

	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

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
		log.Info().
			Str("addr", srv.Addr).
			Str("version", version).
			Str("db", cfg.DB.Driver).
			Str("realtime", cfg.Realtime.Driver).
			Msg("listening")
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
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
