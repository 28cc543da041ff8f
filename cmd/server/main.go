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

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/auth"
	"storefront/internal/broker"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/vault"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer(util.TracerConfig{
		ServiceName:    "storefront",
		Environment:    cfg.Server.Env,
		JaegerEndpoint: cfg.Observ.JaegerEndpoint,
		SampleRatio:    cfg.Observ.TraceSampleRatio,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	repo, err := openStore(cfg)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer repo.Close()
	logger.Info("Store ready", zap.String("driver", cfg.Database.Driver))

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)

	cardVault, err := openVault(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize card vault", zap.Error(err))
	}

	ledger := service.NewInventoryLedger()
	cartService := service.NewCartService(repo)
	checkoutService := service.NewCheckoutService(repo, ledger, service.NewCardCheckAuthorizer(), cardVault,
		redisClient, redisClient, eventPublisher, service.CheckoutConfig{
			LockTTL:        cfg.Business.CheckoutLockTTL,
			IdempotencyTTL: cfg.Business.IdempotencyTTL,
		})
	orderService := service.NewOrderService(repo, ledger, eventPublisher, service.StatusThresholds{
		ProcessingAfter: cfg.Business.ProcessingAfter,
		InTransitAfter:  cfg.Business.InTransitAfter,
	})
	deliveryService := service.NewDeliveryService(repo, orderService)
	refundService := service.NewRefundService(repo, ledger, eventPublisher, cfg.Business.RefundWindow)
	revenueService := service.NewRevenueService(repo)
	resolver := auth.NewResolver(repo, redisClient, cfg.Business.SessionCacheTTL)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(consumer, repo, worker.NewLogNotifier(logger))
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Notification worker error", zap.Error(err))
		}
	}()

	sweeper := worker.NewStatusSweeper(orderService, redisClient, cfg.Business.SweepInterval)
	go func() {
		if err := sweeper.Start(workerCtx); err != nil {
			logger.Error("Status sweeper error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Auth:       resolver,
		Carts:      cartService,
		Checkout:   checkoutService,
		Orders:     orderService,
		Deliveries: deliveryService,
		Refunds:    refundService,
		Revenue:    revenueService,
		Ready:      redisClient.Ping,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := notificationWorker.Stop(); err != nil {
		logger.Warn("Error stopping notification worker", zap.Error(err))
	}

	logger.Info("Server exited")
}

func openStore(cfg *config.Config) (store.Repository, error) {
	switch cfg.Database.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "postgres":
		pg, err := store.NewPostgres(cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Database.Driver)
	}
}

// openVault loads the card key. Outside production a missing key gets a
// throwaway one, which makes saved cards unreadable after a restart.
func openVault(cfg *config.Config, logger *zap.Logger) (*vault.Vault, error) {
	if cfg.Vault.KeyHex != "" {
		return vault.New(cfg.Vault.KeyHex)
	}
	if cfg.Server.Env == "production" {
		return nil, fmt.Errorf("CARD_VAULT_KEY is required in production")
	}
	v, _, err := vault.Generate()
	if err != nil {
		return nil, err
	}
	logger.Warn("CARD_VAULT_KEY not set, using an ephemeral key")
	return v, nil
}
