package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// missingIDsBatch держит число параметров IN (...) ниже лимитов SQLite и Postgres.
const missingIDsBatch = 500

type productRepository struct {
	base
}

// NewProductRepository создаёт SQL-реализацию каталога товаров.
func NewProductRepository(db *sql.DB, dialect Dialect, opts ...Option) domain.ProductRepository {
	return &productRepository{base: newBase(db, dialect, opts)}
}

func (r *productRepository) List(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, price, created_at, updated_at
		FROM products
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, timestamp{&p.CreatedAt}, timestamp{&p.UpdatedAt}); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return result, nil
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := r.now()
	product.CreatedAt = now
	product.UpdatedAt = now

	if err := r.db.QueryRowContext(ctx, r.q(`
		INSERT INTO products (name, price, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), product.Name, product.Price, r.ts(now), r.ts(now)).Scan(&product.ID); err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}

	return product, nil
}

func (r *productRepository) MissingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	found := make(map[int64]struct{}, len(ids))
	for start := 0; start < len(ids); start += missingIDsBatch {
		end := min(start+missingIDsBatch, len(ids))
		if err := r.collectIDs(ctx, ids[start:end], found); err != nil {
			return nil, err
		}
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// collectIDs добавляет в found существующие id из одной пачки.
func (r *productRepository) collectIDs(ctx context.Context, ids []int64, found map[int64]struct{}) error {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT id FROM products WHERE id IN (`+placeholders(len(ids))+`)
	`), args...)
	if err != nil {
		return fmt.Errorf("select product ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan product id: %w", err)
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate product ids: %w", err)
	}
	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
