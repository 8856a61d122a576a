package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Port          string
	Env           string
	LogLevel      string
	JWTSecret     string
	AllowedOrigin string
	// Storage
	StorageDriver     string // postgres | memory
	DBUrl             string
	DBMaxConns        int32
	DBMinConns        int32
	DBMaxConnIdleTime time.Duration
	DBAutoMigrate     bool
	// Events (Redis pub/sub)
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	NotificationChannel string
	GatewayChannel      string
	// Payment gateway
	StripeSecretKey string
	// Settlement rules
	DefaultCommissionPercentage decimal.Decimal
	DefaultCurrency             string
	EscrowHoldPeriod            time.Duration
	// Cache
	CacheCatalogTTL time.Duration
	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int
}

func LoadConfig() *Config {
	// 1. Check if a specific config file is requested via env var
	configFile := os.Getenv("CONFIG_FILE")
	if configFile != "" {
		if err := godotenv.Load(configFile); err != nil {
			log.Printf("Warning: Failed to load config file '%s': %v", configFile, err)
		} else {
			log.Printf("Loaded configuration from %s", configFile)
		}
	} else {
		// 2. Default fallback: .env for local dev, system env vars otherwise
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found or error loading it, relying on system env vars")
		}
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		JWTSecret:     getEnv("JWT_SECRET", "default_secret_CHANGE_ME"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://localhost:3000"),

		StorageDriver:     getEnv("STORAGE_DRIVER", StoragePostgres),
		DBUrl:             getEnv("DB_DSN", ""),
		DBMaxConns:        getInt32Env("DB_MAX_CONNS", 50),
		DBMinConns:        getInt32Env("DB_MIN_CONNS", 10),
		DBMaxConnIdleTime: getDurationEnv("DB_MAX_CONN_IDLE_TIME", time.Minute*15),
		DBAutoMigrate:     getBoolEnv("DB_AUTO_MIGRATE", false),

		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getIntEnv("REDIS_DB", 0),
		NotificationChannel: getEnv("EVENTS_NOTIFICATION_CHANNEL", "caconnect.notifications"),
		GatewayChannel:      getEnv("EVENTS_GATEWAY_CHANNEL", "caconnect.gateway"),

		StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),

		// Settlement defaults: 10% platform commission, 7 day escrow hold
		DefaultCommissionPercentage: getDecimalEnv("DEFAULT_COMMISSION_PERCENTAGE", decimal.NewFromInt(10)),
		DefaultCurrency:             getEnv("DEFAULT_CURRENCY", "INR"),
		EscrowHoldPeriod:            getDurationEnv("ESCROW_HOLD_PERIOD", 7*24*time.Hour),

		CacheCatalogTTL: getDurationEnv("CACHE_CATALOG_TTL", 5*time.Minute),

		RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),
	}

	cfg.Validate()
	return cfg
}

func (c *Config) Validate() {
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DBUrl == "" {
			log.Fatal("CRITICAL: DB_DSN environment variable is required")
		}
	case StorageMemory:
		log.Println("WARNING: Using in-memory storage. Data is lost on restart.")
	default:
		log.Fatalf("CRITICAL: unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.JWTSecret == "default_secret_CHANGE_ME" {
		log.Println("WARNING: Using default JWT secret. Setting up for failure in production.")
	}
	if c.DefaultCommissionPercentage.IsNegative() || c.DefaultCommissionPercentage.GreaterThan(decimal.NewFromInt(100)) {
		log.Fatal("CRITICAL: DEFAULT_COMMISSION_PERCENTAGE must be between 0 and 100")
	}
	if c.RedisAddr == "" {
		log.Println("WARNING: REDIS_ADDR not set, events are only logged")
	}
}
