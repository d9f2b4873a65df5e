package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paircall-platform/internal/audit"
	"paircall-platform/internal/auth"
	"paircall-platform/internal/calls"
	"paircall-platform/internal/chat"
	"paircall-platform/internal/coins"
	"paircall-platform/internal/config"
	"paircall-platform/internal/httpapi"
	"paircall-platform/internal/media"
	"paircall-platform/internal/reporting"
	"paircall-platform/internal/settings"
	"paircall-platform/internal/signaling"
	"paircall-platform/internal/users"
	"paircall-platform/pkg/logger"
	"paircall-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	mediaProvider, err := media.NewJWTProvider(cfg.Media)
	if err != nil {
		log.Error("media token init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Persistence layer.
	callStore := calls.NewPostgresStore(db)
	coinStore := coins.NewPostgresStore(db)
	userDirectory := users.NewPostgresDirectory(db)
	chatFinder := chat.NewPostgresFinder(db)
	settingsRepo := settings.NewPostgresRepo(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	// Services. The relay both drives the call service and subscribes to its
	// sweep events, so the publisher is bound after construction.
	coinSvc := coins.NewService(coinStore, rdb, cfg.Call.StalenessWindow)
	settingsSvc := settings.NewService(settingsRepo, cfg.Call.DefaultCoinPrice, cfg.Call.DefaultDurationSeconds)
	callSvc := calls.NewService(callStore, coinSvc, userDirectory, chatFinder, settingsSvc, auditSvc, nil)

	hub := signaling.NewHub(log)
	relay := signaling.NewRelay(hub, callSvc, mediaProvider, cfg.Call, log)
	callSvc.SetPublisher(relay)

	reportingSvc := reporting.NewService(reporting.NewStoreRepository(callStore, coinStore))

	handlers := httpapi.Handlers{
		Auth:      authManager,
		Users:     userDirectory,
		Coins:     coinSvc,
		Calls:     callSvc,
		Settings:  settingsSvc,
		Reporting: reportingSvc,
		Audit:     auditSvc,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, handlers, relay, auth.RequireAccessToken(authManager))

	// Safety net for calls whose in-memory timers died with a process restart.
	go runSweeper(rootCtx, callSvc, cfg.Call, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

func runSweeper(ctx context.Context, callSvc *calls.Service, cfg config.CallConfig, log *slog.Logger) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := callSvc.SweepStale(ctx, cfg.StalenessWindow)
			if err != nil {
				log.Error("stale call sweep failed", "err", err)
				continue
			}
			if swept > 0 {
				log.Info("stale calls swept", "count", swept)
			}
		}
	}
}
