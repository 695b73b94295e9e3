package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/app"
	"github.com/vladislavdragonenkov/orderdesk/internal/version"
)

const (
	envConfigFile          = "ORDERDESK_CONFIG"
	envHTTPAddr            = "ORDERDESK_HTTP_ADDR"
	envMetricsAddr         = "ORDERDESK_METRICS_ADDR"
	envLogLevel            = "ORDERDESK_LOG_LEVEL"
	envStorageDriver       = "ORDERDESK_STORAGE_DRIVER"
	envSQLitePath          = "ORDERDESK_SQLITE_PATH"
	envPostgresDSN         = "ORDERDESK_POSTGRES_DSN"
	envPostgresAutoMigrate = "ORDERDESK_POSTGRES_AUTO_MIGRATE"
	envSeedDemoData        = "ORDERDESK_SEED_DEMO_DATA"
	envSeedProducts        = "ORDERDESK_SEED_PRODUCTS"
	envSeedOrders          = "ORDERDESK_SEED_ORDERS"
	envCORSAllowOrigins    = "ORDERDESK_CORS_ALLOW_ORIGINS"
	envCORSMaxAge          = "ORDERDESK_CORS_MAX_AGE"
	envKafkaBrokers        = "ORDERDESK_KAFKA_BROKERS"
	envOutboxTopic         = "ORDERDESK_OUTBOX_TOPIC"
	envOutboxPollInterval  = "ORDERDESK_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "ORDERDESK_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "ORDERDESK_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "ORDERDESK_OUTBOX_RETRY_DELAY"
	envOutboxMaxLag        = "ORDERDESK_OUTBOX_MAX_LAG"
	envShutdownTimeout     = "ORDERDESK_SHUTDOWN_TIMEOUT"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level string) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return err
	}
	log.SetLevel(parsed)
	return nil
}

// readConfigFromEnv накладывает переменные окружения на конфиг по умолчанию (или на YAML из ORDERDESK_CONFIG).
// Некорректные значения не применяются и возвращаются предупреждениями.
func readConfigFromEnv(lookup envLookup) (app.Config, []error) {
	cfg := app.DefaultConfig()
	var warnings []error

	if path, ok := lookupTrimmed(lookup, envConfigFile); ok {
		fromFile, err := app.LoadConfigFile(path, cfg)
		if err != nil {
			warnings = append(warnings, err)
		} else {
			cfg = fromFile
		}
	}

	setString := func(key string, dst *string) {
		if v, ok := lookupTrimmed(lookup, key); ok {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		v, ok := lookupTrimmed(lookup, key)
		if !ok {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	setInt := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := lookupTrimmed(lookup, key)
		if !ok {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	setDuration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookupTrimmed(lookup, key)
		if !ok {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	setString(envHTTPAddr, &cfg.HTTPAddr)
	if v, ok := lookup(envMetricsAddr); ok {
		// пустое значение отключает сервер метрик
		cfg.MetricsAddr = strings.TrimSpace(v)
	}
	setString(envLogLevel, &cfg.LogLevel)
	if v, ok := lookupTrimmed(lookup, envStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}
	setString(envSQLitePath, &cfg.SQLitePath)
	setString(envPostgresDSN, &cfg.PostgresDSN)
	setBool(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	setBool(envSeedDemoData, &cfg.SeedDemoData)
	setInt(envSeedProducts, &cfg.SeedProducts, positive, "must be > 0")
	setInt(envSeedOrders, &cfg.SeedOrders, nonNegative, "must be >= 0")
	setString(envCORSAllowOrigins, &cfg.CORSAllowOrigins)
	setDuration(envCORSMaxAge, &cfg.CORSMaxAge, nonNegativeDuration, "must be >= 0")
	setString(envKafkaBrokers, &cfg.KafkaBrokers)
	setString(envOutboxTopic, &cfg.OutboxTopic)
	setDuration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	setInt(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	setInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	setDuration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	setDuration(envOutboxMaxLag, &cfg.OutboxMaxLag, positiveDuration, "must be > 0")
	setDuration(envShutdownTimeout, &cfg.ShutdownTimeout, positiveDuration, "must be > 0")

	return cfg, warnings
}

func lookupTrimmed(lookup envLookup, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if valid != nil && !valid(v) {
		return 0, fmt.Errorf("invalid int value %q: %s", raw, rule)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if valid != nil && !valid(v) {
		return 0, fmt.Errorf("invalid duration value %q: %s", raw, rule)
	}
	return v, nil
}

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения
	_ = godotenv.Load()

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	if err := setupLogger(cfg.LogLevel); err != nil {
		log.WithError(err).Warn("неизвестный уровень логирования, используем info")
	}
	for _, w := range warnings {
		log.WithError(w).Warn("некорректное значение конфигурации, используем значение по умолчанию")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	build := version.Current()
	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"version":        build.Version,
		"commit":         build.Commit,
	}).Info("запускаем order API")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("order API остановлен")
}
