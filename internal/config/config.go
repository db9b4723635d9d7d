package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageMongo  = "mongo"
)

type Config struct {
	HTTPPort        string
	GRPCHealthPort  string
	LogLevel        string
	Environment     string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	StorageBackend   string
	RedisAddr        string
	RedisPassword    string
	RedisTTL         time.Duration
	MongoURI         string
	MongoDBName      string
	MongoMaxPoolSize int

	CatalogDBPath  string
	CatalogTimeout time.Duration

	// empty disables the Kafka publisher and the stock poller
	KafkaBrokers    []string
	CartEventsTopic string
	InventoryTopic  string

	TaxRate               decimal.Decimal
	DefaultShippingCost   decimal.Decimal
	Currency              string
	SessionIdleTTL        time.Duration
	DiscountExpiryWarning time.Duration

	OTLPEndpoint string
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var errs []error
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		GRPCHealthPort:  getEnv("GRPC_HEALTH_PORT", "50060"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Environment:     getEnv("ENV", "development"),
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,

		StorageBackend:   strings.ToLower(getEnv("STORAGE_BACKEND", StorageMemory)),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTTL:         getDurationEnv("REDIS_TTL_MIN", 7*24*60, time.Minute, &errs),
		MongoURI:         getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:      getEnv("MONGO_DB_NAME", "storefront"),
		MongoMaxPoolSize: getIntEnv("MONGO_MAX_POOL_SIZE", 50, &errs),

		CatalogDBPath:  getEnv("CATALOG_DB_PATH", "catalog.db"),
		CatalogTimeout: getDurationEnv("CATALOG_TIMEOUT_MS", 2000, time.Millisecond, &errs),

		KafkaBrokers:    getListEnv("KAFKA_BROKERS"),
		CartEventsTopic: getEnv("CART_EVENTS_TOPIC", "cart-events"),
		InventoryTopic:  getEnv("INVENTORY_TOPIC", "inventory-updates"),

		TaxRate:               getDecimalEnv("TAX_RATE", "0.08", &errs),
		DefaultShippingCost:   getDecimalEnv("DEFAULT_SHIPPING_COST", "5.99", &errs),
		Currency:              getEnv("CURRENCY", "USD"),
		SessionIdleTTL:        getDurationEnv("SESSION_IDLE_TTL_MIN", 30, time.Minute, &errs),
		DiscountExpiryWarning: getDurationEnv("DISCOUNT_EXPIRY_WARNING_HOURS", 24, time.Hour, &errs),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	switch cfg.StorageBackend {
	case StorageMemory, StorageRedis, StorageMongo:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND: unknown backend %q", cfg.StorageBackend))
	}
	if cfg.MongoMaxPoolSize <= 0 {
		errs = append(errs, errors.New("MONGO_MAX_POOL_SIZE: must be positive"))
	}
	if cfg.TaxRate.IsNegative() {
		errs = append(errs, errors.New("TAX_RATE: must not be negative"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int, errs *[]error) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", key, valueStr))
		return defaultValue
	}
	return value
}

// getDurationEnv reads an integer count of unit.
func getDurationEnv(key string, defaultValue int, unit time.Duration, errs *[]error) time.Duration {
	n := getIntEnv(key, defaultValue, errs)
	if n < 0 {
		*errs = append(*errs, fmt.Errorf("%s: must not be negative", key))
		n = defaultValue
	}
	return time.Duration(n) * unit
}

func getDecimalEnv(key, defaultValue string, errs *[]error) decimal.Decimal {
	valueStr := getEnv(key, defaultValue)
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a decimal", key, valueStr))
		return decimal.RequireFromString(defaultValue)
	}
	return value
}

// getListEnv splits a comma separated value, dropping empty entries.
func getListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
