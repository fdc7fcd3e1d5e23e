package config

import (
	"auction-engine/internal/auctionstate"
	"auction-engine/internal/repository/sqlstore"
	"auction-engine/internal/settlement"
	"auction-engine/utils"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted in STORE_DRIVER
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config is the process configuration, read from the environment
type Config struct {
	Port             string
	GRPCPort         string
	LogLevel         string
	SeedFile         string
	SubscriberBuffer int

	Store        StoreConfig
	Auction      AuctionConfig
	Settlement   settlement.SweeperConfig
	RateLimit    RateLimitConfig
	Registration RegistrationConfig
}

// StoreConfig selects and tunes the auction store
type StoreConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// AuctionConfig holds lifecycle timing rules
type AuctionConfig struct {
	Extension        auctionstate.ExtensionPolicy
	RegistrationLead time.Duration
}

// RateLimitConfig is the per-client token bucket in front of bid submission.
// A zero rate disables limiting.
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

// RegistrationConfig holds the shared secret that registration tokens are signed with
type RegistrationConfig struct {
	TokenSecret string
	TokenIssuer string
}

// LoadDotEnv reads a .env file into the environment if one exists.
// Variables already set in the environment win.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		utils.Debug("No .env file loaded", map[string]any{"error": err.Error()})
		return
	}
	utils.Info("Loaded environment from .env", nil)
}

// Load builds the configuration from environment variables, applying defaults
func Load() (*Config, error) {
	window, err := getEnvDuration("ANTI_SNIPE_WINDOW", auctionstate.DefaultExtensionWindow)
	if err != nil {
		return nil, err
	}
	extension, err := getEnvDuration("ANTI_SNIPE_EXTENSION", auctionstate.DefaultExtension)
	if err != nil {
		return nil, err
	}
	registrationLead, err := getEnvDuration("REGISTRATION_LEAD", 0)
	if err != nil {
		return nil, err
	}
	sweepInterval, err := getEnvDuration("SWEEP_INTERVAL", time.Second)
	if err != nil {
		return nil, err
	}
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}
	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	ratePerSec, err := getEnvFloat("BID_RATE_PER_SEC", 20)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:             ":" + getEnvString("PORT", "8080"),
		GRPCPort:         ":" + getEnvString("GRPC_PORT", "9090"),
		LogLevel:         getEnvString("LOG_LEVEL", "info"),
		SeedFile:         getEnvString("SEED_FILE", ""),
		SubscriberBuffer: getEnvInt("SUBSCRIBER_BUFFER", 64),
		Store: StoreConfig{
			Driver:          getEnvString("STORE_DRIVER", DriverMemory),
			DSN:             getEnvString("DATABASE_DSN", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Auction: AuctionConfig{
			Extension:        auctionstate.ExtensionPolicy{Window: window, Extension: extension},
			RegistrationLead: registrationLead,
		},
		Settlement: settlement.SweeperConfig{
			Interval: sweepInterval,
			Batch:    getEnvInt("SWEEP_BATCH", 100),
			Workers:  getEnvInt("SETTLEMENT_WORKERS", 8),
		},
		RateLimit: RateLimitConfig{
			PerSecond: ratePerSec,
			Burst:     getEnvInt("BID_RATE_BURST", 40),
		},
		Registration: RegistrationConfig{
			TokenSecret: getEnvString("REGISTRATION_TOKEN_SECRET", ""),
			TokenIssuer: getEnvString("REGISTRATION_TOKEN_ISSUER", ""),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for store driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Auction.Extension.Window < 0 || c.Auction.Extension.Extension < 0 {
		return fmt.Errorf("anti-sniping window and extension cannot be negative")
	}
	if c.RateLimit.PerSecond < 0 {
		return fmt.Errorf("BID_RATE_PER_SEC cannot be negative")
	}
	return nil
}

// SQL returns the sqlstore settings for a SQL driver
func (s StoreConfig) SQL() sqlstore.Config {
	return sqlstore.Config{
		Dialect:         sqlstore.Dialect(s.Driver),
		DSN:             s.DSN,
		MaxOpenConns:    s.MaxOpenConns,
		MaxIdleConns:    s.MaxIdleConns,
		ConnMaxLifetime: s.ConnMaxLifetime,
		ConnMaxIdleTime: s.ConnMaxIdleTime,
		PingTimeout:     s.PingTimeout,
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %q (%w)", key, value, err)
		}
		return f, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
