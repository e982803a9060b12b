package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/walletledger/internal/events/kafka"
	"github.com/nkiryanov/walletledger/internal/logger"
)

const (
	defaultListenAddr        = "localhost:8000"
	defaultLoggingLevel      = logger.LevelInfo
	defaultEnvironment       = logger.EnvProduction
	defaultLockTimeout       = 5 * time.Second
	defaultIdempotencyTTL    = 24 * time.Hour
	defaultReconcileSchedule = "@hourly"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the ledger service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Used to verify HMAC signed access tokens, so it has to be shared with the token issuer
	SecretKey string

	// Environment
	Environment string

	// How long a write waits for a busy wallet before giving up
	LockTimeout time.Duration

	// Redis for HTTP response replay. Empty disables the replay layer
	RedisURL       string
	IdempotencyTTL time.Duration

	// Kafka brokers for transaction events. Empty disables publishing
	KafkaBrokers []string
	KafkaTopic   string

	// Cron schedule for ledger reconciliation. Empty disables it
	ReconcileSchedule string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:          defaultLoggingLevel,
		ListenAddr:        defaultListenAddr,
		Environment:       defaultEnvironment,
		LockTimeout:       defaultLockTimeout,
		IdempotencyTTL:    defaultIdempotencyTTL,
		KafkaTopic:        kafka.DefaultTopic,
		ReconcileSchedule: defaultReconcileSchedule,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setList := func(o *[]string) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			*o = nil
			for _, item := range strings.Split(value, ",") {
				if item = strings.TrimSpace(item); item != "" {
					*o = append(*o, item)
				}
			}
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":        setString(&c.ListenAddr),
		"DATABASE_URI":       setString(&c.DatabaseDSN),
		"SECRET_KEY":         setString(&c.SecretKey),
		"LOG_LEVEL":          setString(&c.LogLevel),
		"ENVIRONMENT":        setString(&c.Environment),
		"LOCK_TIMEOUT":       setDuration(&c.LockTimeout),
		"REDIS_URL":          setString(&c.RedisURL),
		"IDEMPOTENCY_TTL":    setDuration(&c.IdempotencyTTL),
		"KAFKA_BROKERS":      setList(&c.KafkaBrokers),
		"KAFKA_TOPIC":        setString(&c.KafkaTopic),
		"RECONCILE_SCHEDULE": setString(&c.ReconcileSchedule),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("walletledger", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (development, production)")
	fs.DurationVar(&c.LockTimeout, "lock-timeout", c.LockTimeout, "Wallet lock wait timeout")
	fs.StringVar(&c.RedisURL, "redis", c.RedisURL, "Redis URL for idempotent response replay")
	fs.DurationVar(&c.IdempotencyTTL, "idempotency-ttl", c.IdempotencyTTL, "How long replayable responses are kept")
	fs.StringSliceVar(&c.KafkaBrokers, "kafka-brokers", c.KafkaBrokers, "Kafka brokers for transaction events")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", c.KafkaTopic, "Kafka topic for transaction events")
	fs.StringVar(&c.ReconcileSchedule, "reconcile-schedule", c.ReconcileSchedule, "Cron schedule for ledger reconciliation, empty to disable")

	return fs.Parse(args)
}
