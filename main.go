package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ludo-arena/config"
	"ludo-arena/handlers"
	"ludo-arena/ludo"
	"ludo-arena/middleware"
	"ludo-arena/models"
	"ludo-arena/services"
	"ludo-arena/utils"
	"ludo-arena/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, dotenv, err := config.Load()
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()
	if !dotenv {
		logger.Info("⚠️  No .env file found, reading environment variables directly")
	}
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := models.AutoMigrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := services.NewGormGameStore(db)
	ledger := services.NewLedgerService()
	wallets := services.NewWalletService(db, ledger)
	stats := services.NewStatsService(db)
	settlement := services.NewSettlementService(db, wallets, stats, logger)
	hub := services.NewHub(logger)

	deps := services.RoomDeps{
		Store:       store,
		Wallet:      wallets,
		Settler:     settlement,
		Dice:        ludo.NewCryptoDice(),
		Events:      hub,
		Logger:      logger,
		TurnTimeout: cfg.TurnTimeout,
	}
	if cfg.Archive.Enabled {
		r2, err := utils.NewR2Client(ctx, cfg.Archive)
		if err != nil {
			logger.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		deps.Archiver = services.NewArchiveService(r2, cfg.Archive.Bucket, logger)
	}

	registry := services.NewRegistry(deps, store, cfg.WaitingRoomTimeout)
	defer registry.Shutdown()
	gateway := services.NewGateway(hub, registry, logger)

	sched, err := registry.StartEvictionScheduler(ctx, cfg.EvictionInterval)
	if err != nil {
		logger.Fatal("failed to start eviction scheduler", zap.Error(err))
	}
	defer sched.Shutdown()

	reconciler := workers.NewReconciler(store, registry, wallets, logger)
	go reconciler.Run(ctx, cfg.ReconcileInterval)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// 🔐 every request must come through the Gateway
	app.Use(middleware.GatewayAuthMiddleware(cfg.GameServiceToken, logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Connection-ID, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID, X-Connection-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	var streamAuth fiber.Handler
	if cfg.AuthServiceURL != "" {
		identity := services.NewIdentityClient(cfg.AuthServiceURL, cfg.GameServiceToken)
		streamAuth = middleware.SSEAuthMiddleware(middleware.TokenValidatorFunc(
			func(ctx context.Context, token, deviceID string) (string, error) {
				resp, err := identity.ValidateToken(ctx, token, deviceID)
				if err != nil {
					return "", err
				}
				return resp.UserID, nil
			}), logger)
	} else {
		streamAuth = middleware.SSEAuthMiddleware(nil, logger)
	}

	handlers.SetupRoomRoutes(app, handlers.NewRoomHandler(gateway, store, stats, logger), streamAuth)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}()

	logger.Info("✅ Server running", zap.String("port", cfg.Port))
	logger.Info("✅ Settlement reconciler running", zap.Duration("interval", cfg.ReconcileInterval))
	logger.Info("✅ Room eviction running", zap.Duration("interval", cfg.EvictionInterval), zap.Duration("waiting_timeout", cfg.WaitingRoomTimeout))
	logger.Info("✅ CORS configured", zap.Strings("origins", cfg.AllowedOrigins))

	<-ctx.Done()
	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}
