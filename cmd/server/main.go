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

	"storefront-service/config"
	"storefront-service/internal/api"
	"storefront-service/internal/auth"
	"storefront-service/internal/blob"
	"storefront-service/internal/broker"
	"storefront-service/internal/redisclient"
	"storefront-service/internal/service"
	"storefront-service/internal/store"
	"storefront-service/internal/util"
	"storefront-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service", zap.String("env", cfg.Server.Env))

	// Money is rendered as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint, cfg.Observ.TraceSampleRatio)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	readiness := map[string]api.Pinger{}

	var (
		repo  store.Repository
		blobs blob.Store
	)
	switch cfg.Database.Driver {
	case "memory":
		mem := store.NewMemory()
		repo = mem
		blobs = blob.NewMemory(cfg.Blob.PublicBaseURL)
		readiness["store"] = mem
		logger.Warn("Using in-memory store, data is lost on restart")
	case "postgres":
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.Migrate(migrateCtx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
		repo = db
		blobs = blob.NewPostgres(db.GetDB(), cfg.Blob.PublicBaseURL)
		readiness["postgres"] = db
		logger.Info("Database connected")
	default:
		logger.Fatal("Unknown store driver", zap.String("driver", cfg.Database.Driver))
	}

	var (
		guard    service.CheckoutGuard
		resolver auth.Resolver
	)
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()

		guard = redisClient
		resolver = auth.NewSessionResolver(redisClient, redisclient.ErrSessionNotFound)
		readiness["redis"] = redisClient
		logger.Info("Redis connected")
	} else {
		tokens, err := auth.ParseStaticTokens(cfg.Auth.StaticTokens)
		if err != nil {
			logger.Fatal("Invalid AUTH_STATIC_TOKENS", zap.Error(err))
		}
		guard = service.NewLocalGuard()
		resolver = tokens
		logger.Warn("Redis disabled, using local checkout guard and static tokens",
			zap.Int("tokens", len(tokens)))
	}

	restockService := service.NewRestockService(repo, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var (
		publisher     *broker.EventPublisher
		restockWorker *worker.RestockWorker
	)
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, logger)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		readiness["kafka"] = producer

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup, logger)
		restockWorker = worker.NewRestockWorker(consumer, restockService, logger)
		go func() {
			if err := restockWorker.Start(workerCtx); err != nil {
				logger.Error("Restock worker error", zap.Error(err))
			}
		}()
		logger.Info("Kafka initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		bus := broker.NewLocalBus(logger)
		bus.Subscribe(worker.NewEventHandler(restockService, logger).HandleMessage)
		publisher = broker.NewEventPublisher(bus)
		logger.Warn("Kafka disabled, delivering events in process")
	}

	cartService := service.NewCartService(repo, logger)
	orderService := service.NewOrderService(repo, guard, publisher, cfg.Business, logger)
	productService := service.NewProductService(repo, blobs, cfg.Blob.MaxUploadBytes, logger)

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Options{
		Carts:      cartService,
		Orders:     orderService,
		Products:   productService,
		Resolver:   resolver,
		Readiness:  readiness,
		Production: cfg.Server.IsProduction(),
		Logger:     logger,
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

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if restockWorker != nil {
		if err := restockWorker.Stop(); err != nil {
			logger.Error("Failed to stop restock worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
