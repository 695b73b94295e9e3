package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/orders"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/postgres"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/sqlite"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/sqlstore"
)

const (
	defaultTimeout = 30 * time.Second
)

type options struct {
	driver       string
	direction    string
	steps        int
	dsn          string
	sqlitePath   string
	seed         bool
	seedProducts int
	seedOrders   int
}

func parseOptions(args []string, lookupEnv func(string) string) (options, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts options
	fs.StringVar(&opts.driver, "driver", "postgres", "storage driver: postgres|sqlite")
	fs.StringVar(&opts.direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&opts.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: ORDERDESK_POSTGRES_DSN)")
	fs.StringVar(&opts.sqlitePath, "sqlite-path", "", "SQLite file (fallback: ORDERDESK_SQLITE_PATH)")
	fs.BoolVar(&opts.seed, "seed", false, "seed demo products and orders after migrating up")
	fs.IntVar(&opts.seedProducts, "seed-products", 10, "number of demo products")
	fs.IntVar(&opts.seedOrders, "seed-orders", 20, "number of demo orders")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	opts.driver = strings.ToLower(strings.TrimSpace(opts.driver))
	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	if strings.TrimSpace(opts.dsn) == "" {
		opts.dsn = strings.TrimSpace(lookupEnv("ORDERDESK_POSTGRES_DSN"))
	}
	if strings.TrimSpace(opts.sqlitePath) == "" {
		opts.sqlitePath = strings.TrimSpace(lookupEnv("ORDERDESK_SQLITE_PATH"))
	}

	switch opts.driver {
	case "postgres":
		if opts.dsn == "" {
			return opts, errors.New("ORDERDESK_POSTGRES_DSN (or -dsn) is required")
		}
	case "sqlite":
		if opts.sqlitePath == "" {
			return opts, errors.New("ORDERDESK_SQLITE_PATH (or -sqlite-path) is required")
		}
	default:
		return opts, fmt.Errorf("unsupported driver: %s (use postgres|sqlite)", opts.driver)
	}
	switch opts.direction {
	case "up", "down", "status":
	default:
		return opts, fmt.Errorf("unsupported direction: %s (use up|down|status)", opts.direction)
	}
	if opts.seed && opts.direction != "up" {
		return opts, errors.New("-seed is only allowed with -direction=up")
	}
	return opts, nil
}

func run(ctx context.Context, opts options, out io.Writer) error {
	switch opts.driver {
	case "sqlite":
		return runSQLite(ctx, opts, out)
	default:
		return runPostgres(ctx, opts, out)
	}
}

func runPostgres(ctx context.Context, opts options, out io.Writer) error {
	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch opts.direction {
	case "up":
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
	case "down":
		if err := store.MigrateDown(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
	}

	status, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	fmt.Fprintf(out, "migrate %s ok: version=%d applied=%d\n", opts.direction, status.Version, status.Applied)
	if len(status.Pending) > 0 {
		fmt.Fprintf(out, "pending: %s\n", strings.Join(status.Pending, ", "))
	}

	if opts.seed {
		return seed(ctx, opts, out,
			sqlstore.NewOrderRepository(store.DB(), sqlstore.Postgres),
			sqlstore.NewProductRepository(store.DB(), sqlstore.Postgres))
	}
	return nil
}

// SQLite-схема применяется целиком и идемпотентно, версий у неё нет.
func runSQLite(ctx context.Context, opts options, out io.Writer) error {
	store, err := sqlite.Open(ctx, opts.sqlitePath)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	defer store.Close()

	switch opts.direction {
	case "up":
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
		fmt.Fprintf(out, "sqlite schema applied: %s\n", opts.sqlitePath)
	case "status":
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("sqlite status failed: %w", err)
		}
		fmt.Fprintf(out, "sqlite store reachable: %s\n", opts.sqlitePath)
		return nil
	case "down":
		return errors.New("sqlite storage does not support down migrations")
	}

	if opts.seed {
		return seed(ctx, opts, out,
			sqlstore.NewOrderRepository(store.DB(), sqlstore.SQLite),
			sqlstore.NewProductRepository(store.DB(), sqlstore.SQLite))
	}
	return nil
}

func seed(ctx context.Context, opts options, out io.Writer, ordersRepo domain.OrderRepository, products domain.ProductRepository) error {
	seeder := orders.NewSeeder(ordersRepo, products, 0, log.WithField("component", "migrate-seed"), nil)
	result, err := seeder.SeedIfEmpty(ctx, opts.seedProducts, opts.seedOrders)
	if err != nil {
		return fmt.Errorf("seed demo data: %w", err)
	}
	fmt.Fprintf(out, "seed ok: products=%d orders=%d\n", result.Products, result.Orders)
	return nil
}

func main() {
	_ = godotenv.Load()

	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
