package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// errForeignKey имитирует нарушение внешнего ключа order_product -> products.
var errForeignKey = errors.New("foreign key constraint failed")

// Option настраивает Store.
type Option func(*Store)

// WithClock подменяет источник времени для created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store — общее in-memory состояние для всех репозиториев.
// Изменения заказов выполняются на копии состояния и подменяют его целиком при успехе,
// поэтому ошибка посреди операции ничего не меняет.
// Outbox живёт отдельно от снимка со своей блокировкой: события транзакции
// попадают в него только при фиксации.
type Store struct {
	mu     sync.RWMutex
	state  *state
	outbox *outboxQueue
	now    func() time.Time
}

type state struct {
	nextOrderID   int64
	nextProductID int64
	orders        map[int64]domain.Order
	products      map[int64]domain.Product
	lines         map[int64]map[int64]domain.OrderLine
	// staged — события текущей транзакции, в копию состояния не переносятся.
	staged        []domain.OutboxMessage
}

// NewStore создаёт пустое хранилище.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state: &state{
			orders:   make(map[int64]domain.Order),
			products: make(map[int64]domain.Product),
			lines:    make(map[int64]map[int64]domain.OrderLine),
		},
		outbox: newOutboxQueue(),
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping всегда успешен; нужен для health-check.
func (s *Store) Ping(context.Context) error { return nil }

// Close ничего не освобождает.
func (s *Store) Close() error { return nil }

func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// tx выполняет fn над копией состояния и фиксирует её, только если fn вернул nil.
func (s *Store) tx(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.state.clone()
	if err := fn(draft); err != nil {
		return err
	}
	if len(draft.staged) > 0 {
		s.outbox.push(draft.staged, s.now())
		draft.staged = nil
	}
	s.state = draft
	return nil
}

func (st *state) clone() *state {
	out := &state{
		nextOrderID:   st.nextOrderID,
		nextProductID: st.nextProductID,
		orders:        make(map[int64]domain.Order, len(st.orders)),
		products:      make(map[int64]domain.Product, len(st.products)),
		lines:         make(map[int64]map[int64]domain.OrderLine, len(st.lines)),
	}
	for id, o := range st.orders {
		out.orders[id] = o
	}
	for id, p := range st.products {
		out.products[id] = p
	}
	for orderID, lines := range st.lines {
		copied := make(map[int64]domain.OrderLine, len(lines))
		for productID, l := range lines {
			copied[productID] = l
		}
		out.lines[orderID] = copied
	}
	return out
}

// enqueue ставит событие в outbox; оно станет видно только после фиксации транзакции.
func (st *state) enqueue(msg domain.OutboxMessage) {
	st.staged = append(st.staged, msg)
}
