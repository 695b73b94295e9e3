// Package sqlstore реализует репозитории поверх database/sql.
// Один и тот же код обслуживает PostgreSQL (pgx) и SQLite (modernc);
// запросы пишутся с плейсхолдерами `?` и переписываются под диалект.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	opTimeout = 5 * time.Second
)

// Dialect определяет синтаксис плейсхолдеров.
type Dialect int

const (
	// Postgres использует $1, $2, ...
	Postgres Dialect = iota
	// SQLite использует ?
	SQLite
)

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// Rebind переписывает `?` в плейсхолдеры диалекта.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// querier — общий интерфейс *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Option настраивает репозитории.
type Option func(*base)

// WithClock подменяет источник времени для created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

// base содержит общие для репозиториев зависимости.
type base struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func newBase(db *sql.DB, dialect Dialect, opts []Option) base {
	b := base{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b base) q(query string) string {
	return b.dialect.Rebind(query)
}

// inTx выполняет fn в транзакции; при ошибке fn или commit транзакция откатывается.
func (b base) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// sqliteTimeLayout — фиксированная ширина, чтобы строки сортировались как время.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ts приводит время к аргументу запроса для диалекта.
func (b base) ts(t time.Time) any {
	if b.dialect == SQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

// timestamp читает TIMESTAMPTZ (postgres) или TEXT (sqlite) в time.Time.
type timestamp struct {
	t *time.Time
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func (ts timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*ts.t = time.Time{}
		return nil
	case time.Time:
		*ts.t = v.UTC()
		return nil
	case []byte:
		return ts.Scan(string(v))
	case string:
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, v); err == nil {
				*ts.t = parsed.UTC()
				return nil
			}
		}
		return fmt.Errorf("scan timestamp: unsupported format %q", v)
	default:
		return fmt.Errorf("scan timestamp: unsupported source type %T", src)
	}
}

// placeholders возвращает "?, ?, ?" для n аргументов.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
