package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	updatedAt  time.Time
}

// outboxQueue — очередь событий в порядке постановки.
// Отправленные записи удаляются сразу, неудачные остаются со статусом failed.
type outboxQueue struct {
	mu      sync.Mutex
	records map[string]*outboxRecord
	// order содержит id в порядке постановки; записи, которые уже не pending, вычищаются compact.
	order   []string
	pending int
}

func newOutboxQueue() *outboxQueue {
	return &outboxQueue{records: make(map[string]*outboxRecord)}
}

func (q *outboxQueue) push(msgs []domain.OutboxMessage, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, msg := range msgs {
		q.records[msg.ID] = &outboxRecord{msg: msg, status: domain.OutboxStatusPending, updatedAt: now}
		q.order = append(q.order, msg.ID)
		q.pending++
	}
}

func (q *outboxQueue) isPending(id string) bool {
	rec, ok := q.records[id]
	return ok && rec.status == domain.OutboxStatusPending
}

// compact убирает из order id, которые больше не ждут отправки.
// Полная пересборка выполняется, только когда таких id больше половины.
func (q *outboxQueue) compact() {
	for len(q.order) > 0 && !q.isPending(q.order[0]) {
		q.order = q.order[1:]
	}
	if len(q.order) <= 2*q.pending+32 {
		return
	}
	kept := make([]string, 0, q.pending)
	for _, id := range q.order {
		if q.isPending(id) {
			kept = append(kept, id)
		}
	}
	q.order = kept
}

func (q *outboxQueue) pendingMessages(limit int) []domain.OutboxMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]domain.OutboxMessage, 0, min(limit, q.pending))
	for _, id := range q.order {
		if !q.isPending(id) {
			continue
		}
		result = append(result, q.records[id].msg)
		if len(result) >= limit {
			break
		}
	}
	return result
}

func (q *outboxQueue) mark(id, status string, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok := q.records[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	if rec.status == domain.OutboxStatusPending {
		q.pending--
	}
	if status == domain.OutboxStatusSent {
		delete(q.records, id)
	} else {
		rec.status = status
		rec.attemptCnt++
		rec.updatedAt = now
	}
	q.compact()
	return nil
}

// outboxRepositoryInMemory читает outbox, который наполняют транзакции заказов.
type outboxRepositoryInMemory struct {
	store *Store
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepositoryInMemory{store: store}
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке постановки.
func (r *outboxRepositoryInMemory) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	return r.store.outbox.pendingMessages(limit), nil
}

func (r *outboxRepositoryInMemory) Stats(ctx context.Context) (domain.OutboxStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxStats{}, err
	}

	q := r.store.outbox
	q.mu.Lock()
	defer q.mu.Unlock()

	var stats domain.OutboxStats
	for _, id := range q.order {
		if !q.isPending(id) {
			continue
		}
		createdAt := q.records[id].msg.CreatedAt
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = createdAt
		}
	}
	return stats, nil
}

// MarkSent удаляет событие после успешной публикации.
func (r *outboxRepositoryInMemory) MarkSent(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.store.outbox.mark(id, domain.OutboxStatusSent, r.store.now())
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepositoryInMemory) MarkFailed(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.store.outbox.mark(id, domain.OutboxStatusFailed, r.store.now())
}

// Outbox возвращает неотправленные сообщения в порядке постановки (используется в тестах).
func (s *Store) Outbox() []domain.OutboxMessage {
	return s.outbox.pendingMessages(int(^uint(0) >> 1))
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
