package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

type orderRepository struct {
	base
}

// NewOrderRepository создаёт SQL-реализацию OrderRepository.
func NewOrderRepository(db *sql.DB, dialect Dialect, opts ...Option) domain.OrderRepository {
	return &orderRepository{base: newBase(db, dialect, opts)}
}

func (r *orderRepository) List(ctx context.Context) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, date, created_at, updated_at
		FROM orders
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return result, nil
}

func (r *orderRepository) Get(ctx context.Context, id int64) (domain.OrderView, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := r.getOrder(ctx, r.db, id)
	if err != nil {
		return domain.OrderView{}, err
	}

	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT p.id, p.name, p.price, p.created_at, p.updated_at, op.quantity
		FROM order_product op
		JOIN products p ON p.id = op.product_id
		WHERE op.order_id = ?
		ORDER BY p.id
	`), id)
	if err != nil {
		return domain.OrderView{}, fmt.Errorf("select order products: %w", err)
	}
	defer rows.Close()

	view := domain.OrderView{Order: order, Products: make([]domain.OrderedProduct, 0)}
	for rows.Next() {
		var item domain.OrderedProduct
		if err := rows.Scan(
			&item.ID, &item.Name, &item.Price,
			timestamp{&item.CreatedAt}, timestamp{&item.UpdatedAt},
			&item.Quantity,
		); err != nil {
			return domain.OrderView{}, fmt.Errorf("scan order product: %w", err)
		}
		view.Products = append(view.Products, item)
	}
	if err := rows.Err(); err != nil {
		return domain.OrderView{}, fmt.Errorf("iterate order products: %w", err)
	}

	return view, nil
}

func (r *orderRepository) Exists(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var one int
	err := r.db.QueryRowContext(ctx, r.q(`SELECT 1 FROM orders WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check order exists: %w", err)
	}
	return true, nil
}

// Update выполняет все шаги в одной транзакции: скаляры, синхронизация позиций, outbox.
func (r *orderRepository) Update(ctx context.Context, id int64, patch domain.OrderPatch) (domain.LineDiff, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var diff domain.LineDiff
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		order, err := r.getOrder(ctx, tx, id)
		if err != nil {
			return err
		}

		now := r.now()
		order.Apply(patch)

		res, err := tx.ExecContext(ctx, r.q(`
			UPDATE orders
			SET name = ?, description = ?, date = ?, updated_at = ?
			WHERE id = ?
		`), order.Name, order.Description, order.Date, r.ts(now), id)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return domain.ErrOrderNotFound
		}

		if patch.HasProducts() {
			current, err := r.loadLines(ctx, tx, id)
			if err != nil {
				return err
			}
			diff = domain.DiffLines(domain.LineSetOf(current), domain.BuildLineSet(patch.Products))
			if err := r.applyDiff(ctx, tx, id, diff); err != nil {
				return err
			}
		}

		msg, err := domain.NewOrderUpdatedMessage(id, patch, diff, now)
		if err != nil {
			return err
		}
		return enqueueOutbox(ctx, tx, r.base, msg)
	})
	if err != nil {
		return domain.LineDiff{}, err
	}

	return diff, nil
}

func (r *orderRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.q(`DELETE FROM order_product WHERE order_id = ?`), id); err != nil {
			return fmt.Errorf("delete order lines: %w", err)
		}

		res, err := tx.ExecContext(ctx, r.q(`DELETE FROM orders WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected for order delete: %w", err)
		}
		if affected == 0 {
			return domain.ErrOrderNotFound
		}

		msg, err := domain.NewOrderDeletedMessage(id, r.now())
		if err != nil {
			return err
		}
		return enqueueOutbox(ctx, tx, r.base, msg)
	})
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order, lines []domain.LineInput) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		now := r.now()
		order.CreatedAt = now
		order.UpdatedAt = now

		if err := tx.QueryRowContext(ctx, r.q(`
			INSERT INTO orders (name, description, date, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id
		`), order.Name, order.Description, order.Date, r.ts(now), r.ts(now)).Scan(&order.ID); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		diff := domain.DiffLines(nil, domain.BuildLineSet(lines))
		return r.applyDiff(ctx, tx, order.ID, diff)
	})
	if err != nil {
		return domain.Order{}, err
	}

	return order, nil
}

func (r *orderRepository) getOrder(ctx context.Context, q querier, id int64) (domain.Order, error) {
	row := q.QueryRowContext(ctx, r.q(`
		SELECT id, name, description, date, created_at, updated_at
		FROM orders
		WHERE id = ?
	`), id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) loadLines(ctx context.Context, q querier, orderID int64) ([]domain.OrderLine, error) {
	rows, err := q.QueryContext(ctx, r.q(`
		SELECT order_id, product_id, quantity, created_at, updated_at
		FROM order_product
		WHERE order_id = ?
		ORDER BY product_id
	`), orderID)
	if err != nil {
		return nil, fmt.Errorf("select order lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.OrderID, &l.ProductID, &l.Quantity, timestamp{&l.CreatedAt}, timestamp{&l.UpdatedAt}); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return lines, nil
}

// applyDiff удаляет, обновляет и вставляет позиции. Обновляются все сохранённые позиции,
// даже если количество не изменилось, чтобы updated_at отражал синхронизацию.
func (r *orderRepository) applyDiff(ctx context.Context, q querier, orderID int64, diff domain.LineDiff) error {
	if diff.Empty() {
		return nil
	}
	now := r.ts(r.now())

	for _, productID := range diff.Delete {
		if _, err := q.ExecContext(ctx, r.q(`
			DELETE FROM order_product WHERE order_id = ? AND product_id = ?
		`), orderID, productID); err != nil {
			return fmt.Errorf("delete order line (product %d): %w", productID, err)
		}
	}

	for _, change := range diff.Update {
		if _, err := q.ExecContext(ctx, r.q(`
			UPDATE order_product
			SET quantity = ?, updated_at = ?
			WHERE order_id = ? AND product_id = ?
		`), change.Quantity, now, orderID, change.ProductID); err != nil {
			return fmt.Errorf("update order line (product %d): %w", change.ProductID, err)
		}
	}

	for _, change := range diff.Insert {
		if _, err := q.ExecContext(ctx, r.q(`
			INSERT INTO order_product (order_id, product_id, quantity, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`), orderID, change.ProductID, change.Quantity, now, now); err != nil {
			return fmt.Errorf("insert order line (product %d): %w", change.ProductID, err)
		}
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var order domain.Order
	if err := row.Scan(
		&order.ID, &order.Name, &order.Description, &order.Date,
		timestamp{&order.CreatedAt}, timestamp{&order.UpdatedAt},
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
