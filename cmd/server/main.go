package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dom/pack-minter/internal/api"
	"github.com/dom/pack-minter/internal/chain"
	"github.com/dom/pack-minter/internal/config"
	"github.com/dom/pack-minter/internal/content"
	"github.com/dom/pack-minter/internal/logging"
	"github.com/dom/pack-minter/internal/metrics"
	"github.com/dom/pack-minter/internal/repository"
	"github.com/dom/pack-minter/internal/repository/filestore"
	"github.com/dom/pack-minter/internal/repository/memory"
	"github.com/dom/pack-minter/internal/repository/postgres"
	"github.com/dom/pack-minter/internal/repository/redisstore"
	"github.com/dom/pack-minter/internal/service"
	"github.com/dom/pack-minter/internal/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		File:        cfg.LogFile,
	})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	registry := metrics.NewRegistry()
	m := metrics.New(registry)

	// Initialize database
	gormLevel := gormlogger.Warn
	if cfg.IsDevelopment() {
		gormLevel = gormlogger.Info
	}
	db, err := postgres.NewConnection(cfg.DatabaseURL, gormLevel)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	repos := postgres.NewRepositories(db)

	// Token counter and mint lock
	var redisClient *redis.Client
	if cfg.CounterBackend == config.CounterRedis {
		redisClient, err = redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	onCorrupt := func(ctx context.Context, err error) {
		m.CounterCorruption.Inc()
		logger.Error("token counter unreadable, treating as 0",
			zap.String("event", "counter_corruption"),
			zap.String("backend", cfg.CounterBackend),
			zap.String("counter", cfg.CounterName),
			zap.Error(err))
	}

	var counter repository.CounterStore
	var locker repository.Locker
	switch cfg.CounterBackend {
	case config.CounterRedis:
		counter = redisstore.NewCounterStore(redisClient, cfg.CounterName, onCorrupt)
		locker = redisstore.NewLocker(redisClient, cfg.MintLockTTL, logger)
	case config.CounterFile:
		counter = filestore.NewCounterStore(cfg.CounterFile, onCorrupt)
		locker = memory.NewLocker()
	default:
		counter = postgres.NewCounterStore(db, cfg.CounterName)
		locker = postgres.NewAdvisoryLocker(db, logger)
	}

	// Content store
	var publisher service.ContentPublisher
	var localStore *content.LocalStore
	switch cfg.ContentBackend {
	case config.ContentLocal:
		localStore, err = content.NewLocalStore(cfg.ContentLocalDir, cfg.ContentPublicURL, logger)
		if err != nil {
			logger.Fatal("failed to open content store", zap.Error(err))
		}
		publisher = localStore
	default:
		publisher = content.NewPinataPublisher(content.PinataConfig{
			Endpoint:  cfg.PinataEndpoint,
			Gateway:   cfg.PinataGateway,
			APIKey:    cfg.PinataAPIKey,
			SecretKey: cfg.PinataSecretKey,
			Timeout:   cfg.PublishTimeout,
		}, logger)
	}

	images, err := newImagePolicy(cfg)
	if err != nil {
		logger.Fatal("failed to load card images", zap.Error(err))
	}

	// Chain
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	minter, ethClient, err := chain.Dial(dialCtx, chain.Config{
		RPCURL:          cfg.ChainRPCURL,
		PrivateKey:      cfg.ChainPrivateKey,
		ContractAddress: cfg.ChainContractAddress,
		ChainID:         cfg.ChainID,
		SubmitTimeout:   cfg.ChainSubmitTimeout,
		ConfirmTimeout:  cfg.ChainConfirmTimeout,
	}, logger)
	cancel()
	if err != nil {
		logger.Fatal("failed to connect to chain", zap.Error(err))
	}
	defer ethClient.Close()

	// Initialize WebSocket hub
	hub := websocket.NewHub(logger)
	go hub.Run()
	defer hub.Stop()

	// Initialize services
	ledger := service.NewLedgerService(repos.NFT, repos.Wallet, cfg.LeaderboardSize, logger)
	reconcile := service.NewReconcileService(filestore.NewReconciliationQueue(cfg.ReconcileFile), ledger, m, logger)
	services := &service.Services{
		Ledger:    ledger,
		Reconcile: reconcile,
		Tokens:    service.NewServiceTokenService(cfg.BattleJWTSecret),
		Mint: service.NewMintService(service.MintDeps{
			Counter:    counter,
			Locker:     locker,
			Images:     images,
			Publisher:  publisher,
			Minter:     minter,
			Ledger:     ledger,
			Reconciler: reconcile,
			Events:     hub,
			Metrics:    m,
			Logger:     logger,
		}, service.MintOptions{
			CollectionName: cfg.CollectionName,
			CounterName:    cfg.CounterName,
			SampleAttempts: cfg.SampleAttempts,
			LockWait:       cfg.MintLockTTL,
		}),
	}

	if err := reconcile.Start(cfg.ReconcileSchedule); err != nil {
		logger.Fatal("failed to schedule reconciliation", zap.Error(err))
	}
	defer reconcile.Stop()

	router := api.NewRouter(api.RouterDeps{
		Services:   services,
		Hub:        hub,
		LocalStore: localStore,
		Registry:   registry,
		Config:     cfg,
		Logger:     logger,
	})

	// A pack run can take several confirmations, so writes get a long budget.
	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("signer", minter.Signer().Hex()),
			zap.String("counter_backend", cfg.CounterBackend),
			zap.String("content_backend", cfg.ContentBackend),
			zap.String("image_policy", cfg.ImagePolicy))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	// Runs in flight stop after their current card; nothing new starts.
	if err := services.Mint.Drain(shutdownCtx); err != nil {
		logger.Error("mint runs did not finish before shutdown", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newImagePolicy(cfg *config.Config) (service.ImagePolicy, error) {
	switch cfg.ImagePolicy {
	case config.ImageAsset:
		return content.NewAssetDirectory(cfg.ImageAssetDir, content.DefaultAssetAliases)
	case config.ImageFixed:
		return content.NewFixedImage(cfg.ImageFixedPath)
	default:
		return nil, fmt.Errorf("unknown image policy %q", cfg.ImagePolicy)
	}
}
