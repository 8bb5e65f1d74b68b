package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds the application configuration
type Config struct {
	Port        string `env:"PORT" envDefault:"5000"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`

	DatabaseURL   string `env:"DATABASE_URL"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"potholes.db"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"potholes"`

	JWTSecret string        `env:"JWT_SECRET,required"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	OTPSalt      string        `env:"OTP_SALT" envDefault:"pothole-otp"`
	OTPTTL       time.Duration `env:"OTP_TTL" envDefault:"10m"`
	OTPDevMode   bool          `env:"OTP_DEV_MODE" envDefault:"false"`
	OTPRateLimit int           `env:"OTP_RATE_LIMIT" envDefault:"0"`

	// TrustProxyHeaders takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites those headers.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	GeocodingAPIKey string `env:"GEOCODING_API_KEY"`
	GeocodingURL    string `env:"GEOCODING_URL" envDefault:"https://maps.googleapis.com/maps/api/geocode/json"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	switch cfg.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required for STORE_DRIVER=postgres")
		}
		logDatabaseTarget(cfg.DatabaseURL)
	case DriverMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI environment variable is required for STORE_DRIVER=mongo")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive, got %v", cfg.TokenTTL)
	}
	if cfg.OTPTTL < 0 {
		return nil, fmt.Errorf("OTP_TTL must not be negative, got %v", cfg.OTPTTL)
	}
	if cfg.OTPRateLimit < 0 {
		return nil, fmt.Errorf("OTP_RATE_LIMIT must not be negative, got %d", cfg.OTPRateLimit)
	}

	return &cfg, nil
}

// logDatabaseTarget logs connection details with the password left out
func logDatabaseTarget(databaseURL string) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	user := u.User.Username()
	if user == "" {
		user = "(none)"
	}
	log.Printf("DB connect: host=%s port=%s db=%s user=%s", host, port, strings.TrimPrefix(u.Path, "/"), user)
}
