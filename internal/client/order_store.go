package client

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// OrderAPI — операции API, которые использует OrderStore.
type OrderAPI interface {
	ListOrders(ctx context.Context) ([]Order, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	UpdateOrder(ctx context.Context, order Order) (Order, error)
	DeleteOrder(ctx context.Context, id int64) (string, error)
}

var _ OrderAPI = (*Client)(nil)

// OrderStore хранит закэшированные заказы и выбранный заказ. Все изменения идут через действия.
//
// Ошибка любого действия сохраняется в Err и пишется в лог; успешное действие очищает Err.
// Каждая загрузка получает номер запроса: ответ, пришедший после более нового запроса
// того же вида или после успешной записи, отбрасывается.
type OrderStore struct {
	api    OrderAPI
	logger *log.Entry

	mu          sync.Mutex
	orders      []Order
	selected    *Order
	inFlight    int
	err         string
	listSeq     uint64
	selectedSeq uint64
}

// NewOrderStore создаёт пустое хранилище заказов.
func NewOrderStore(api OrderAPI, logger *log.Entry) *OrderStore {
	if logger == nil {
		logger = log.WithField("component", "order-store")
	}
	return &OrderStore{api: api, logger: logger}
}

// Orders возвращает копию списка заказов.
func (s *OrderStore) Orders() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, 0, len(s.orders))
	for i := range s.orders {
		out = append(out, *s.orders[i].Clone())
	}
	return out
}

// SelectedOrder возвращает копию выбранного заказа или nil.
func (s *OrderStore) SelectedOrder() *Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected.Clone()
}

// Loading сообщает, что выполняется хотя бы одно действие.
func (s *OrderStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight > 0
}

// Err возвращает сообщение последней ошибки или пустую строку.
func (s *OrderStore) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// begin отмечает начало действия; возвращённая функция снимает флаг загрузки.
func (s *OrderStore) begin() func() {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}
}

// fail сохраняет ошибку действия. Вызывается под s.mu.
func (s *OrderStore) fail(action string, err error) error {
	s.err = err.Error()
	s.logger.WithError(err).WithField("action", action).Warn("order store action failed")
	return err
}

// FetchOrders заменяет список заказов результатом GET /api/orders.
func (s *OrderStore) FetchOrders(ctx context.Context) error {
	defer s.begin()()

	s.mu.Lock()
	s.listSeq++
	token := s.listSeq
	s.mu.Unlock()

	orders, err := s.api.ListOrders(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.listSeq {
		s.logger.WithField("action", "fetch_orders").Debug("stale response discarded")
		return nil
	}
	if err != nil {
		return s.fail("fetch_orders", err)
	}
	if orders == nil {
		orders = []Order{}
	}
	s.orders = orders
	s.err = ""
	return nil
}

// FetchOrderByID заменяет выбранный заказ результатом GET /api/orders/{id}.
func (s *OrderStore) FetchOrderByID(ctx context.Context, id int64) error {
	defer s.begin()()

	s.mu.Lock()
	s.selectedSeq++
	token := s.selectedSeq
	s.mu.Unlock()

	order, err := s.api.GetOrder(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.selectedSeq {
		s.logger.WithFields(log.Fields{"action": "fetch_order", "order_id": id}).Debug("stale response discarded")
		return nil
	}
	if err != nil {
		return s.fail("fetch_order", err)
	}
	s.selected = &order
	s.err = ""
	return nil
}

// UpdateOrder сохраняет заказ. Ответ сервера заменяет запись в списке (по id) и выбранный заказ.
// При ошибке состояние не меняется.
func (s *OrderStore) UpdateOrder(ctx context.Context, order Order) (Order, error) {
	defer s.begin()()

	updated, err := s.api.UpdateOrder(ctx, order)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		return Order{}, s.fail("update_order", err)
	}
	for i := range s.orders {
		if s.orders[i].ID == updated.ID {
			s.orders[i] = *updated.Clone()
			break
		}
	}
	s.selected = updated.Clone()
	s.err = ""
	// загрузки, начатые до записи, вернут устаревшие данные
	s.listSeq++
	s.selectedSeq++
	return updated, nil
}

// DeleteOrder удаляет заказ и убирает его из списка.
func (s *OrderStore) DeleteOrder(ctx context.Context, id int64) error {
	defer s.begin()()

	_, err := s.api.DeleteOrder(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		return s.fail("delete_order", err)
	}
	kept := s.orders[:0:0]
	for _, o := range s.orders {
		if o.ID != id {
			kept = append(kept, o)
		}
	}
	s.orders = kept
	s.err = ""
	s.listSeq++
	return nil
}
