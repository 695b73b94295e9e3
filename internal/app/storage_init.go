package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/memory"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/postgres"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/sqlite"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/sqlstore"
)

// pingCloser — хранилище, которое умеет проверять соединение и закрываться.
type pingCloser interface {
	Ping(ctx context.Context) error
	io.Closer
}

// runtimeDependencies — репозитории выбранного хранилища.
type runtimeDependencies struct {
	orders     domain.OrderRepository
	products   domain.ProductRepository
	outboxRepo domain.OutboxRepository
	store      pingCloser
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.store == nil {
		return
	}
	if err := d.store.Close(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// initRuntimeDependencies открывает хранилище по cfg.StorageDriver и создаёт репозитории.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		store := memory.NewStore()
		logger.Info("using in-memory storage")
		return &runtimeDependencies{
			orders:     memory.NewOrderRepository(store),
			products:   memory.NewProductRepository(store),
			outboxRepo: memory.NewOutboxRepository(store),
			store:      store,
		}, nil

	case StorageDriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.WithField("path", cfg.SQLitePath).Info("using sqlite storage")
		return sqlDependencies(store, store.DB(), sqlstore.SQLite), nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required for storage driver %q", cfg.StorageDriver)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, err
			}
		}
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")
		return sqlDependencies(store, store.DB(), sqlstore.Postgres), nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func sqlDependencies(store pingCloser, db *sql.DB, dialect sqlstore.Dialect) *runtimeDependencies {
	return &runtimeDependencies{
		orders:     sqlstore.NewOrderRepository(db, dialect),
		products:   sqlstore.NewProductRepository(db, dialect),
		outboxRepo: sqlstore.NewOutboxRepository(db, dialect),
		store:      store,
	}
}
