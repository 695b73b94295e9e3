package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository поверх Store.
type orderRepositoryInMemory struct {
	store *Store
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepositoryInMemory{store: store}
}

func (r *orderRepositoryInMemory) List(ctx context.Context) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []domain.Order
	r.store.read(func(st *state) {
		result = make([]domain.Order, 0, len(st.orders))
		for _, o := range st.orders {
			result = append(result, o)
		}
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *orderRepositoryInMemory) Get(ctx context.Context, id int64) (domain.OrderView, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderView{}, err
	}

	var (
		view  domain.OrderView
		found bool
	)
	r.store.read(func(st *state) {
		order, ok := st.orders[id]
		if !ok {
			return
		}
		found = true
		view.Order = order
		view.Products = make([]domain.OrderedProduct, 0, len(st.lines[id]))
		for productID, line := range st.lines[id] {
			view.Products = append(view.Products, domain.OrderedProduct{
				Product:  st.products[productID],
				Quantity: line.Quantity,
			})
		}
	})
	if !found {
		return domain.OrderView{}, domain.ErrOrderNotFound
	}
	view.SortProducts()
	return view, nil
}

func (r *orderRepositoryInMemory) Exists(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var ok bool
	r.store.read(func(st *state) {
		_, ok = st.orders[id]
	})
	return ok, nil
}

// Update применяет патч на копии состояния; при любой ошибке копия отбрасывается.
func (r *orderRepositoryInMemory) Update(ctx context.Context, id int64, patch domain.OrderPatch) (domain.LineDiff, error) {
	var diff domain.LineDiff
	err := r.store.tx(ctx, func(st *state) error {
		order, ok := st.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}

		now := r.store.now()
		order.Apply(patch)
		order.UpdatedAt = now
		st.orders[id] = order

		if patch.HasProducts() {
			current := st.lines[id]
			existing := make([]domain.OrderLine, 0, len(current))
			for _, l := range current {
				existing = append(existing, l)
			}
			diff = domain.DiffLines(domain.LineSetOf(existing), domain.BuildLineSet(patch.Products))
			if err := applyDiff(st, id, diff, now); err != nil {
				return err
			}
		}

		msg, err := domain.NewOrderUpdatedMessage(id, patch, diff, now)
		if err != nil {
			return err
		}
		st.enqueue(msg)
		return nil
	})
	if err != nil {
		return domain.LineDiff{}, err
	}
	return diff, nil
}

func (r *orderRepositoryInMemory) Delete(ctx context.Context, id int64) error {
	return r.store.tx(ctx, func(st *state) error {
		if _, ok := st.orders[id]; !ok {
			return domain.ErrOrderNotFound
		}
		delete(st.lines, id)
		delete(st.orders, id)

		now := r.store.now()
		msg, err := domain.NewOrderDeletedMessage(id, now)
		if err != nil {
			return err
		}
		st.enqueue(msg)
		return nil
	})
}

func (r *orderRepositoryInMemory) Create(ctx context.Context, order domain.Order, lines []domain.LineInput) (domain.Order, error) {
	err := r.store.tx(ctx, func(st *state) error {
		now := r.store.now()
		st.nextOrderID++
		order.ID = st.nextOrderID
		order.CreatedAt = now
		order.UpdatedAt = now
		st.orders[order.ID] = order

		diff := domain.DiffLines(nil, domain.BuildLineSet(lines))
		return applyDiff(st, order.ID, diff, now)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func applyDiff(st *state, orderID int64, diff domain.LineDiff, now time.Time) error {
	if diff.Empty() {
		return nil
	}
	lines := st.lines[orderID]
	if lines == nil {
		lines = make(map[int64]domain.OrderLine)
		st.lines[orderID] = lines
	}

	for _, productID := range diff.Delete {
		delete(lines, productID)
	}
	for _, change := range diff.Update {
		line := lines[change.ProductID]
		line.Quantity = change.Quantity
		line.UpdatedAt = now
		lines[change.ProductID] = line
	}
	for _, change := range diff.Insert {
		if _, ok := st.products[change.ProductID]; !ok {
			return fmt.Errorf("insert order line (product %d): %w", change.ProductID, errForeignKey)
		}
		lines[change.ProductID] = domain.OrderLine{
			OrderID:   orderID,
			ProductID: change.ProductID,
			Quantity:  change.Quantity,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return nil
}

// Lines возвращает сохранённые позиции заказа (используется в тестах).
func (s *Store) Lines(orderID int64) []domain.OrderLine {
	var out []domain.OrderLine
	s.read(func(st *state) {
		for _, l := range st.lines[orderID] {
			out = append(out, l)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
