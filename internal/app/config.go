package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/orderdesk/internal/api"
)

// Поддерживаемые хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска приложения.
// Списки (CORS, брокеры) хранятся строками через запятую, чтобы конфиг оставался сравнимым.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`

	StorageDriver       string `yaml:"storage_driver"`
	SQLitePath          string `yaml:"sqlite_path"`
	PostgresDSN         string `yaml:"postgres_dsn"`
	PostgresAutoMigrate bool   `yaml:"postgres_auto_migrate"`

	SeedDemoData bool   `yaml:"seed_demo_data"`
	SeedProducts int    `yaml:"seed_products"`
	SeedOrders   int    `yaml:"seed_orders"`
	SeedRandom   uint64 `yaml:"seed_random"`

	CORSAllowOrigins string        `yaml:"cors_allow_origins"`
	CORSAllowMethods string        `yaml:"cors_allow_methods"`
	CORSAllowHeaders string        `yaml:"cors_allow_headers"`
	CORSMaxAge       time.Duration `yaml:"cors_max_age"`

	KafkaBrokers       string        `yaml:"kafka_brokers"`
	OutboxTopic        string        `yaml:"outbox_topic"`
	OutboxDLQTopic     string        `yaml:"outbox_dlq_topic"`
	OutboxPollInterval time.Duration `yaml:"outbox_poll_interval"`
	OutboxBatchSize    int           `yaml:"outbox_batch_size"`
	OutboxMaxAttempts  int           `yaml:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `yaml:"outbox_retry_delay"`
	// OutboxMaxLag — возраст самого старого неотправленного события, после которого /healthz сообщает degraded.
	OutboxMaxLag       time.Duration `yaml:"outbox_max_lag"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig возвращает конфигурацию для локального запуска: in-memory хранилище с демо-данными.
func DefaultConfig() Config {
	cors := api.DefaultCORSConfig()
	return Config{
		HTTPAddr:    ":8000",
		MetricsAddr: ":9090",
		LogLevel:    "info",

		StorageDriver:       StorageDriverMemory,
		SQLitePath:          "orderdesk.db",
		PostgresAutoMigrate: true,

		SeedDemoData: true,
		SeedProducts: 10,
		SeedOrders:   20,

		CORSAllowOrigins: strings.Join(cors.AllowOrigins, ","),
		CORSAllowMethods: strings.Join(cors.AllowMethods, ","),
		CORSAllowHeaders: strings.Join(cors.AllowHeaders, ","),
		CORSMaxAge:       cors.MaxAge,

		OutboxTopic:        "orderdesk.order.events",
		OutboxDLQTopic:     "orderdesk.dlq",
		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,
		OutboxMaxLag:       5 * time.Minute,

		ShutdownTimeout: 5 * time.Second,
	}
}

// LoadConfigFile накладывает YAML-файл поверх base. Отсутствующие в файле ключи сохраняют значения base.
func LoadConfigFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite path is required for sqlite storage"))
		}
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if c.SeedDemoData && (c.SeedProducts < 0 || c.SeedOrders < 0) {
		errs = append(errs, errors.New("seed counts must not be negative"))
	}
	return errors.Join(errs...)
}

// CORS собирает настройки CORS для API.
func (c Config) CORS() api.CORSConfig {
	return api.CORSConfig{
		AllowOrigins: splitList(c.CORSAllowOrigins),
		AllowMethods: splitList(c.CORSAllowMethods),
		AllowHeaders: splitList(c.CORSAllowHeaders),
		MaxAge:       c.CORSMaxAge,
	}
}

// Brokers возвращает список Kafka-брокеров; пустой список отключает Kafka.
func (c Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
