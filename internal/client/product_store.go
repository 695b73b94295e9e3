package client

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ProductAPI — операции API, которые использует ProductStore.
type ProductAPI interface {
	ListProducts(ctx context.Context) ([]Product, error)
}

var _ ProductAPI = (*Client)(nil)

// ProductStore хранит каталог товаров для формы заказа.
type ProductStore struct {
	api    ProductAPI
	logger *log.Entry

	mu       sync.Mutex
	products []Product
	inFlight int
	err      string
	seq      uint64
}

// NewProductStore создаёт пустое хранилище товаров.
func NewProductStore(api ProductAPI, logger *log.Entry) *ProductStore {
	if logger == nil {
		logger = log.WithField("component", "product-store")
	}
	return &ProductStore{api: api, logger: logger}
}

// Products возвращает копию каталога.
func (s *ProductStore) Products() []Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Product, len(s.products))
	copy(out, s.products)
	return out
}

func (s *ProductStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight > 0
}

func (s *ProductStore) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// FetchProducts заменяет каталог результатом GET /api/products.
func (s *ProductStore) FetchProducts(ctx context.Context) error {
	s.mu.Lock()
	s.inFlight++
	s.seq++
	token := s.seq
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	products, err := s.api.ListProducts(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.seq {
		return nil
	}
	if err != nil {
		s.err = err.Error()
		s.logger.WithError(err).Warn("fetch products failed")
		return err
	}
	s.products = products
	s.err = ""
	return nil
}
