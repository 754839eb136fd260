package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Lock        LockConfig
	Reservation ReservationConfig
	Reaper      ReaperConfig
	Event       EventConfig
	Metrics     MetricsConfig
}

type AppConfig struct {
	Name    string
	Port    string
	Debug   bool
	LogPath string
}

type DatabaseConfig struct {
	Driver      string
	Host        string
	Port        string
	Name        string
	User        string
	Password    string
	MaxConns    int32
	AutoMigrate bool
}

type RedisConfig struct {
	// Nodes holds independent Redis addresses; ["memory"] selects in-process nodes.
	Nodes       []string
	MemoryNodes int
	Password    string
	DB          int
	TLS         bool
}

// UseMemory reports whether the lock manager should run on in-process nodes.
func (c RedisConfig) UseMemory() bool {
	return len(c.Nodes) == 1 && c.Nodes[0] == "memory"
}

type LockConfig struct {
	TTL            time.Duration
	ExtendInterval time.Duration
	DriftFactor    float64
	RetryCount     int
	RetryDelay     time.Duration
}

type ReservationConfig struct {
	HoldTTL        time.Duration
	BookingTTL     time.Duration
	IdempotencyTTL time.Duration
}

type ReaperConfig struct {
	HoldInterval        time.Duration
	BookingInterval     time.Duration
	IdempotencyInterval time.Duration
}

type EventConfig struct {
	AMQPURL string
}

type MetricsConfig struct {
	Enabled bool
}

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

// LoadConfig resolves configuration from envFile (optional) and the process
// environment. An empty envFile means ".env" in the working directory.
func LoadConfig(envFile string) (*Config, error) {
	v := viper.New()

	if envFile == "" {
		envFile = ".env"
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")

	// Set defaults
	v.SetDefault("APP_NAME", "seat-reservation")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DEBUG", false)
	v.SetDefault("LOG_PATH", "logs/")

	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "seat_reservation")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASS", "")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_NODES", "localhost:6379")
	v.SetDefault("REDIS_MEMORY_NODES", 3)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_TLS", false)

	v.SetDefault("LOCK_TTL", 5*time.Second)
	v.SetDefault("LOCK_EXTEND_INTERVAL", 2*time.Second)
	v.SetDefault("LOCK_DRIFT_FACTOR", 0.01)
	v.SetDefault("LOCK_RETRY_COUNT", 3)
	v.SetDefault("LOCK_RETRY_DELAY", 200*time.Millisecond)

	v.SetDefault("HOLD_TTL", 5*time.Minute)
	v.SetDefault("BOOKING_TTL", time.Duration(0))
	v.SetDefault("IDEMPOTENCY_TTL", 24*time.Hour)

	v.SetDefault("HOLD_SWEEP_INTERVAL", 30*time.Second)
	v.SetDefault("BOOKING_SWEEP_INTERVAL", time.Minute)
	v.SetDefault("IDEMPOTENCY_SWEEP_INTERVAL", 10*time.Minute)

	v.SetDefault("AMQP_URL", "")
	v.SetDefault("METRICS_ENABLED", true)

	if err := v.ReadInConfig(); err != nil {
		// A missing .env is fine; everything can come from the environment.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", envFile, err)
		}
	}

	v.AutomaticEnv()

	config := &Config{
		App: AppConfig{
			Name:    v.GetString("APP_NAME"),
			Port:    v.GetString("PORT"),
			Debug:   v.GetBool("DEBUG"),
			LogPath: v.GetString("LOG_PATH"),
		},
		Database: DatabaseConfig{
			Driver:      strings.ToLower(v.GetString("DB_DRIVER")),
			Host:        v.GetString("DB_HOST"),
			Port:        v.GetString("DB_PORT"),
			Name:        v.GetString("DB_NAME"),
			User:        v.GetString("DB_USER"),
			Password:    v.GetString("DB_PASS"),
			MaxConns:    v.GetInt32("DB_MAX_CONNS"),
			AutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
		},
		Redis: RedisConfig{
			Nodes:       splitList(v.GetString("REDIS_NODES")),
			MemoryNodes: v.GetInt("REDIS_MEMORY_NODES"),
			Password:    v.GetString("REDIS_PASSWORD"),
			DB:          v.GetInt("REDIS_DB"),
			TLS:         v.GetBool("REDIS_TLS"),
		},
		Lock: LockConfig{
			TTL:            v.GetDuration("LOCK_TTL"),
			ExtendInterval: v.GetDuration("LOCK_EXTEND_INTERVAL"),
			DriftFactor:    v.GetFloat64("LOCK_DRIFT_FACTOR"),
			RetryCount:     v.GetInt("LOCK_RETRY_COUNT"),
			RetryDelay:     v.GetDuration("LOCK_RETRY_DELAY"),
		},
		Reservation: ReservationConfig{
			HoldTTL:        v.GetDuration("HOLD_TTL"),
			BookingTTL:     v.GetDuration("BOOKING_TTL"),
			IdempotencyTTL: v.GetDuration("IDEMPOTENCY_TTL"),
		},
		Reaper: ReaperConfig{
			HoldInterval:        v.GetDuration("HOLD_SWEEP_INTERVAL"),
			BookingInterval:     v.GetDuration("BOOKING_SWEEP_INTERVAL"),
			IdempotencyInterval: v.GetDuration("IDEMPOTENCY_SWEEP_INTERVAL"),
		},
		Event: EventConfig{
			AMQPURL: v.GetString("AMQP_URL"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("METRICS_ENABLED"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects values the lock manager, store or reapers cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL, DriverMemory:
	default:
		return fmt.Errorf("invalid DB_DRIVER %q: want postgres, mysql or memory", c.Database.Driver)
	}
	if c.Database.Driver != DriverMemory && c.Database.MaxConns <= 0 {
		return fmt.Errorf("invalid DB_MAX_CONNS %d: must be positive", c.Database.MaxConns)
	}

	if len(c.Redis.Nodes) == 0 {
		return errors.New("REDIS_NODES must list at least one node")
	}
	if c.Redis.UseMemory() && c.Redis.MemoryNodes <= 0 {
		return fmt.Errorf("invalid REDIS_MEMORY_NODES %d: must be positive", c.Redis.MemoryNodes)
	}

	if c.Lock.TTL <= 0 {
		return fmt.Errorf("invalid LOCK_TTL %s: must be positive", c.Lock.TTL)
	}
	if c.Lock.ExtendInterval < 0 {
		return fmt.Errorf("invalid LOCK_EXTEND_INTERVAL %s: must not be negative", c.Lock.ExtendInterval)
	}
	if c.Lock.ExtendInterval > 0 && c.Lock.ExtendInterval >= c.Lock.TTL {
		return fmt.Errorf("LOCK_EXTEND_INTERVAL %s must be shorter than LOCK_TTL %s", c.Lock.ExtendInterval, c.Lock.TTL)
	}
	if c.Lock.DriftFactor < 0 || c.Lock.DriftFactor >= 1 {
		return fmt.Errorf("invalid LOCK_DRIFT_FACTOR %v: must be in [0,1)", c.Lock.DriftFactor)
	}
	if c.Lock.RetryCount < 0 || c.Lock.RetryDelay < 0 {
		return errors.New("LOCK_RETRY_COUNT and LOCK_RETRY_DELAY must not be negative")
	}

	if c.Reservation.HoldTTL <= 0 {
		return fmt.Errorf("invalid HOLD_TTL %s: must be positive", c.Reservation.HoldTTL)
	}
	if c.Reservation.BookingTTL < 0 {
		return fmt.Errorf("invalid BOOKING_TTL %s: must not be negative", c.Reservation.BookingTTL)
	}
	if c.Reservation.IdempotencyTTL <= 0 {
		return fmt.Errorf("invalid IDEMPOTENCY_TTL %s: must be positive", c.Reservation.IdempotencyTTL)
	}

	if c.Reaper.HoldInterval <= 0 || c.Reaper.BookingInterval <= 0 || c.Reaper.IdempotencyInterval <= 0 {
		return errors.New("sweep intervals must be positive")
	}

	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
