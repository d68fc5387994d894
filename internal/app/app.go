package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"go-calc-api/internal/config"
	"go-calc-api/internal/database"
	"go-calc-api/internal/event"
	"go-calc-api/internal/handler"
	"go-calc-api/internal/middleware"
	"go-calc-api/internal/notify"
	"go-calc-api/internal/repository"
	"go-calc-api/internal/router"
	"go-calc-api/internal/service"
	"go-calc-api/internal/websocket"
)

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	blacklistRepo := repository.NewBlacklistRepository(pool)
	calculationRepo := repository.NewCalculationRepository(pool)
	slog.Info("database ready")

	var notifier service.WelcomeNotifier
	if cfg.SMTPEnabled() {
		notifier = notify.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SenderEmail)
		slog.Info("welcome email notifier enabled", "host", cfg.SMTPHost)
	}

	bus := event.NewBus()
	hub := websocket.NewHub(bus)
	go hub.Run()

	authService, err := service.NewAuthService(
		cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, cfg.BcryptCost,
		userRepo, blacklistRepo, notifier, bus,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}
	authMiddleware := middleware.NewAuthMiddleware(authService)
	authHandler := handler.NewAuthHandler(authService)

	calculationService := service.NewCalculationService(calculationRepo, bus)
	calculationHandler := handler.NewCalculationHandler(calculationService)

	pagesHandler, err := handler.NewPagesHandler()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to parse page templates: %w", err)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.TokenCleanupSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		removed, err := blacklistRepo.CleanExpired(ctx)
		if err != nil {
			slog.Error("blacklist cleanup failed", "error", err)
			return
		}
		if removed > 0 {
			slog.Info("blacklist cleanup", "removed", removed)
		}
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to schedule blacklist cleanup: %w", err)
	}
	scheduler.Start()

	appRouter := router.New(cfg, authMiddleware, router.Handlers{
		Auth:        authHandler,
		Calculation: calculationHandler,
		Pages:       pagesHandler,
		WS:          websocket.ServeWS(hub, authService),
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		db:     db,
		cleanupFuncs: []func(){
			func() {
				scheduler.Stop()
			},
			func() {
				hub.Stop()
			},
			func() {
				db.Close()
			},
		},
	}, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	slog.Info("server stopped")
	return nil
}
