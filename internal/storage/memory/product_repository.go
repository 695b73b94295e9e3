package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

type productRepositoryInMemory struct {
	store *Store
}

// NewProductRepository возвращает in-memory каталог товаров.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepositoryInMemory{store: store}
}

func (r *productRepositoryInMemory) List(ctx context.Context) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []domain.Product
	r.store.read(func(st *state) {
		result = make([]domain.Product, 0, len(st.products))
		for _, p := range st.products {
			result = append(result, p)
		}
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *productRepositoryInMemory) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	err := r.store.tx(ctx, func(st *state) error {
		now := r.store.now()
		st.nextProductID++
		product.ID = st.nextProductID
		product.CreatedAt = now
		product.UpdatedAt = now
		st.products[product.ID] = product
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (r *productRepositoryInMemory) MissingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var missing []int64
	r.store.read(func(st *state) {
		for _, id := range ids {
			if _, ok := st.products[id]; !ok {
				missing = append(missing, id)
			}
		}
	})
	return missing, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
