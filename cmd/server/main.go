package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pos-service/config"
	"pos-service/internal/api"
	"pos-service/internal/broker"
	"pos-service/internal/cache"
	"pos-service/internal/redisclient"
	"pos-service/internal/service"
	"pos-service/internal/store"
	"pos-service/internal/store/memory"
	"pos-service/internal/store/mongo"
	"pos-service/internal/store/postgres"
	"pos-service/internal/util"
	"pos-service/internal/worker"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Log.File); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting POS service")

	if cfg.Observ.JaegerEndpoint != "" {
		tp, err := util.InitTracer("pos-service", cfg.Observ.JaegerEndpoint)
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
	}

	ctx := context.Background()

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		logger.Fatal("Failed to open document store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer st.Close()
	logger.Info("Document store ready", zap.String("backend", cfg.Store.Backend))

	var (
		summaryCache cache.SummaryCache = cache.NoopSummaryCache{}
		commitGuard  cache.CommitGuard  = cache.NewLocalCommitGuard()
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		summaryCache = redisClient
		commitGuard = redisClient
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	var publisher service.EventPublisher = broker.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSaleEvent)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	loc := cfg.POS.Location()
	history := service.NewHistory(st, summaryCache, service.NewAggregator(loc, cfg.POS.TopProducts, cfg.POS.MaxWindowDays), cfg.POS.SummaryCacheTTL)
	inventory := service.NewInventory(st, publisher)

	registry := service.NewRegistry(service.Dependencies{
		Store:     st,
		Guard:     commitGuard,
		Publisher: publisher,
		History:   history,
	}, service.SessionConfig{
		SuggestionLimit: cfg.POS.SuggestionLimit,
		MinQueryChars:   cfg.POS.MinQueryChars,
		CommitLockTTL:   cfg.POS.CommitLockTimeout,
		Location:        loc,
	})

	sweeper, err := registry.StartSweeper(cfg.POS.SweepSchedule, cfg.POS.SessionIdle)
	if err != nil {
		logger.Fatal("Failed to start session sweeper", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var saleWorker *worker.SaleEventWorker
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicSaleEvent, cfg.Kafka.ConsumerGroup)
		saleWorker = worker.NewSaleEventWorker(consumer, service.NewStockMonitor(history))
		go func() {
			if err := saleWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Sale event worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(registry, inventory, history, cfg.POS.WindowDays)
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

	<-sweeper.Stop().Done()
	workerCancel()
	if saleWorker != nil {
		saleWorker.Stop()
	}

	logger.Info("Server exited")
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.DocumentStore, error) {
	switch cfg.Backend {
	case "memory":
		if cfg.Seed {
			return memory.NewSeeded(memory.WithMaxAttempts(cfg.MaxAttempts)), nil
		}
		return memory.New(memory.WithMaxAttempts(cfg.MaxAttempts)), nil

	case "postgres":
		db, err := postgres.NewStore(cfg.DatabaseURL, cfg.MaxAttempts)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil

	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return mongo.NewStore(connectCtx, cfg.MongoURI, cfg.MongoDatabase, cfg.MaxAttempts)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
