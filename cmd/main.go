package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/fjod/storefront-cart/internal/catalog"
	"github.com/fjod/storefront-cart/internal/config"
	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/fjod/storefront-cart/internal/events"
	h "github.com/fjod/storefront-cart/internal/http"
	"github.com/fjod/storefront-cart/internal/persistence"
	"github.com/fjod/storefront-cart/internal/poller"
	"github.com/fjod/storefront-cart/internal/pricing"
	"github.com/fjod/storefront-cart/internal/service"
	"github.com/fjod/storefront-cart/internal/session"
	"github.com/fjod/storefront-cart/internal/telemetry"
	"github.com/fjod/storefront-cart/internal/validator"
	"github.com/fjod/storefront-cart/pkg/logger"
)

const version = "v1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("storefront cart stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer provider: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warn("error shutting down tracer provider", zap.Error(err))
		}
	}()

	metrics, err := telemetry.NewPersistenceMetrics(nil, log)
	if err != nil {
		return err
	}

	// Catalog
	sqliteCatalog, err := catalog.NewSQLiteCatalog(cfg.CatalogDBPath)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer sqliteCatalog.Close()
	if err := sqliteCatalog.RunMigrations(); err != nil {
		return fmt.Errorf("failed to migrate catalog: %w", err)
	}
	lookup := catalog.NewResilient(sqliteCatalog, sqliteCatalog, cfg.CatalogTimeout, log)
	log.Info("catalog ready", zap.String("path", cfg.CatalogDBPath))

	// Cart snapshots
	storage, closeStorage, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStorage()
	adapter := persistence.NewAdapter(storage, lookup, log)

	// Events
	bus := events.NewBus(log)
	bus.Subscribe(events.ListenerFunc(func(ctx context.Context, event domain.CartEvent) {
		logger.WithContext(ctx, log).Debug("cart event",
			zap.String("event_type", string(event.Type)),
			zap.String("cart_id", event.CartID))
	}))

	// the publisher outlives ctx so requests drained during shutdown still
	// get their events out
	publishCtx, stopPublishing := context.WithCancel(context.Background())
	defer stopPublishing()
	var publisher *events.KafkaPublisher
	publisherDone := make(chan struct{})
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.CartEventsTopic, cfg.KafkaBrokers...), log)
		bus.Subscribe(publisher)
		go func() {
			defer close(publisherDone)
			publisher.Run(publishCtx)
		}()
		log.Info("publishing cart events", zap.String("topic", cfg.CartEventsTopic), zap.Strings("brokers", cfg.KafkaBrokers))
	}

	// Carts
	engine := pricing.NewEngine(pricing.Config{
		TaxRate:             cfg.TaxRate,
		DefaultShippingCost: cfg.DefaultShippingCost,
		Currency:            cfg.Currency,
	})
	cartValidator := validator.New(cfg.DiscountExpiryWarning)

	manager := session.NewManager(func(sessionID string) *service.CartStore {
		return service.NewCartStore(sessionID, service.Deps{
			Lookup:    lookup,
			Discounts: lookup,
			Pricing:   engine,
			Validator: cartValidator,
			Persister: adapter,
			Emitter:   bus,
			Recorder:  metrics,
			Log:       log,
		})
	}, cfg.SessionIdleTTL, log)

	var stockPoller *poller.StockPoller
	if len(cfg.KafkaBrokers) > 0 {
		stockPoller = poller.NewStockPoller(
			poller.NewKafkaReader(cfg.InventoryTopic, cfg.KafkaBrokers...),
			sqliteCatalog, manager, log)
		go stockPoller.Run(ctx)
		log.Info("consuming stock updates", zap.String("topic", cfg.InventoryTopic))
	}

	// gRPC health
	lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		log.Info("health server listening", zap.String("port", cfg.GRPCHealthPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("health server error", zap.Error(err))
		}
	}()

	// HTTP
	handler := h.NewCartHandler(manager, cfg.RequestTimeout, log)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      h.NewRouter(handler, log),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("cart API listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		log.Error("http server error", zap.Error(err))
	}

	// Graceful shutdown
	stop()
	log.Info("shutting down...")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if stockPoller != nil {
		stockPoller.Close()
	}
	manager.Close()
	if publisher != nil {
		stopPublishing()
		<-publisherDone
		publisher.Close()
	}
	grpcServer.GracefulStop()

	log.Info("cart service stopped")
	return nil
}

// openStorage connects the configured snapshot backend.
func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (persistence.Storage, func(), error) {
	switch cfg.StorageBackend {
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		log.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))
		return persistence.NewRedisStorage(client, cfg.RedisTTL), func() { client.Close() }, nil

	case config.StorageMongo:
		db, err := persistence.ConnectMongoDB(ctx, persistence.MongoOptions{
			URI:         cfg.MongoURI,
			Database:    cfg.MongoDBName,
			MaxPoolSize: uint64(cfg.MongoMaxPoolSize),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		storage := persistence.NewMongoStorage(db)
		if err := storage.CreateIndexes(ctx); err != nil {
			log.Warn("failed to create snapshot indexes", zap.Error(err))
		}
		log.Info("connected to MongoDB", zap.String("database", cfg.MongoDBName))
		return storage, func() { disconnectMongo(db.Client(), log) }, nil

	default:
		log.Warn("cart snapshots are kept in memory and lost on restart")
		return persistence.NewMemoryStorage(), func() {}, nil
	}
}

func disconnectMongo(client *mongo.Client, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		log.Warn("failed to disconnect from MongoDB", zap.Error(err))
	}
}
