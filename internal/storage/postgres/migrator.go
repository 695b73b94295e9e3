package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	migrationsDir    = "sql/migrations"
	// migrationLockKey — ключ pg_advisory_lock, общий для всех экземпляров order-api и migrate.
	migrationLockKey = int64(0x0D35C0DE)
	statusTimeout    = 5 * time.Second
)

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

//go:embed sql/migrations/*.sql
var embeddedMigrations embed.FS

var errNotInitialized = errors.New("postgres store is not initialized")

type migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

func (m migration) label() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

// MigrationStatus описывает состояние схемы: последнюю применённую версию и то, что ещё не применено.
type MigrationStatus struct {
	Version int64
	Applied int
	Pending []string
}

// MigrateUp применяет не больше steps новых миграций; steps <= 0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(conn *sql.Conn, all []migration) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		for _, m := range planUp(all, applied, steps) {
			if err := execMigration(ctx, conn, m, true); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrateDown откатывает последние steps миграций; steps <= 0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(conn *sql.Conn, all []migration) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		plan, err := planDown(all, applied, steps)
		if err != nil {
			return err
		}
		for _, m := range plan {
			if err := execMigration(ctx, conn, m, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrationStatus сравнивает встроенные миграции с таблицей schema_migrations.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationStatus, error) {
	if s == nil || s.db == nil {
		return MigrationStatus{}, errNotInitialized
	}
	all, err := loadMigrations(embeddedMigrations)
	if err != nil {
		return MigrationStatus{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, createMigrationsTable); err != nil {
		return MigrationStatus{}, fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return MigrationStatus{}, err
	}

	status := MigrationStatus{Applied: len(applied)}
	if n := len(applied); n > 0 {
		status.Version = applied[n-1]
	}
	for _, m := range planUp(all, applied, 0) {
		status.Pending = append(status.Pending, m.label())
	}
	return status, nil
}

// withMigrationLock держит advisory lock на выделенном соединении, пока выполняется fn.
func (s *Store) withMigrationLock(ctx context.Context, fn func(conn *sql.Conn, all []migration) error) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	all, err := loadMigrations(embeddedMigrations)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockKey)
	}()

	if _, err := conn.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return fn(conn, all)
}

// planUp отбирает неприменённые миграции по возрастанию версии.
func planUp(all []migration, applied []int64, steps int) []migration {
	var plan []migration
	for _, m := range all {
		if slices.Contains(applied, m.Version) {
			continue
		}
		plan = append(plan, m)
		if steps > 0 && len(plan) == steps {
			break
		}
	}
	return plan
}

// planDown берёт последние применённые версии, начиная с самой новой.
// Версия без файлов в бинаре — ошибка: откатить её нечем.
func planDown(all []migration, applied []int64, steps int) ([]migration, error) {
	if steps <= 0 {
		steps = 1
	}
	var plan []migration
	for i := len(applied) - 1; i >= 0 && len(plan) < steps; i-- {
		idx := slices.IndexFunc(all, func(m migration) bool { return m.Version == applied[i] })
		if idx < 0 {
			return nil, fmt.Errorf("cannot roll back unknown migration version %d", applied[i])
		}
		plan = append(plan, all[idx])
	}
	return plan, nil
}

// appliedVersions возвращает применённые версии по возрастанию.
func appliedVersions(ctx context.Context, conn *sql.Conn) ([]int64, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return versions, nil
}

// execMigration выполняет тело миграции и запись в schema_migrations в одной транзакции.
func execMigration(ctx context.Context, conn *sql.Conn, m migration, up bool) (err error) {
	direction, body := "up", m.Up
	bookkeeping, args := `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, []any{m.Version, m.Name}
	if !up {
		direction, body = "down", m.Down
		bookkeeping, args = `DELETE FROM schema_migrations WHERE version = $1`, []any{m.Version}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s %s: %w", direction, m.label(), err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("%s %s%s: %w", direction, m.label(), describePgError(err), err)
	}
	if _, err = tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return fmt.Errorf("record %s %s: %w", direction, m.label(), err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s %s: %w", direction, m.label(), err)
	}
	return nil
}

// parseMigrationFile разбирает имя вида 0001_orders.up.sql.
func parseMigrationFile(file string) (version int64, name string, up bool, err error) {
	rest, isUp := strings.CutSuffix(file, ".up.sql")
	if !isUp {
		var isDown bool
		if rest, isDown = strings.CutSuffix(file, ".down.sql"); !isDown {
			return 0, "", false, fmt.Errorf("invalid migration file name: %s", file)
		}
	}
	rawVersion, name, ok := strings.Cut(rest, "_")
	if !ok || name == "" {
		return 0, "", false, fmt.Errorf("invalid migration file name: %s", file)
	}
	version, err = strconv.ParseInt(rawVersion, 10, 64)
	if err != nil || version <= 0 {
		return 0, "", false, fmt.Errorf("invalid migration version in %s", file)
	}
	return version, name, isUp, nil
}

// loadMigrations читает пары up/down из sql/migrations и сортирует их по версии.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		version, name, up, err := parseMigrationFile(entry.Name())
		if err != nil {
			return nil, err
		}
		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration %s is empty", entry.Name())
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if m.Name != name {
			return nil, fmt.Errorf("migration %d has two names: %s and %s", version, m.Name, name)
		}
		slot := &m.Down
		if up {
			slot = &m.Up
		}
		if *slot != "" {
			return nil, fmt.Errorf("duplicate migration file %s", entry.Name())
		}
		*slot = body
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %s needs both up and down files", m.label())
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

// describePgError дописывает SQLSTATE и позицию ошибки сервера PostgreSQL.
func describePgError(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	if pgErr.Position > 0 {
		return fmt.Sprintf(" [sqlstate %s at %d]", pgErr.Code, pgErr.Position)
	}
	return fmt.Sprintf(" [sqlstate %s]", pgErr.Code)
}

// Migrations перечисляет встроенные миграции в виде 0001_orders.
func Migrations() ([]string, error) {
	all, err := loadMigrations(embeddedMigrations)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for _, m := range all {
		names = append(names, m.label())
	}
	return names, nil
}
