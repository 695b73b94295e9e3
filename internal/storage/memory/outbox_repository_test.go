package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

func TestOutboxRepository_PullAndMark(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewOutboxRepository(store)

	first, _ := domain.NewOrderDeletedMessage(1, time.Now().Add(-time.Minute))
	second, _ := domain.NewOrderDeletedMessage(2, time.Now())
	store.outbox.push([]domain.OutboxMessage{first, second}, time.Now())

	pending, err := repo.PullPending(ctx, 1)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Fatalf("expected first message, got %+v", pending)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 2 || !stats.OldestPendingAt.Equal(first.CreatedAt) {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := repo.MarkSent(ctx, first.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, second.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, "missing"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish for missing record, got %v", err)
	}

	pending, _ = repo.PullPending(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("expected no pending messages, got %d", len(pending))
	}
}

func TestOutboxRepository_SentRecordsAreDropped(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewOutboxRepository(store)

	const total = 1000
	for i := 1; i <= total; i++ {
		msg, _ := domain.NewOrderDeletedMessage(int64(i), time.Now())
		store.outbox.push([]domain.OutboxMessage{msg}, time.Now())
	}

	for {
		batch, err := repo.PullPending(ctx, 50)
		if err != nil {
			t.Fatalf("pull failed: %v", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, msg := range batch {
			if err := repo.MarkSent(ctx, msg.ID); err != nil {
				t.Fatalf("mark sent failed: %v", err)
			}
		}
	}

	if got := len(store.outbox.records); got != 0 {
		t.Fatalf("sent records must be dropped, %d left", got)
	}
	if got := len(store.outbox.order); got != 0 {
		t.Fatalf("order index must be empty, got %d", got)
	}
	if err := repo.MarkSent(ctx, "missing"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish, got %v", err)
	}
}

func TestOutboxRepository_OutOfOrderMarksKeepIndexBounded(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewOutboxRepository(store)

	head, _ := domain.NewOrderDeletedMessage(1, time.Now())
	store.outbox.push([]domain.OutboxMessage{head}, time.Now())
	for i := 2; i <= 500; i++ {
		msg, _ := domain.NewOrderDeletedMessage(int64(i), time.Now())
		store.outbox.push([]domain.OutboxMessage{msg}, time.Now())
		if err := repo.MarkSent(ctx, msg.ID); err != nil {
			t.Fatalf("mark sent failed: %v", err)
		}
	}

	if got := len(store.outbox.order); got > 2*1+32 {
		t.Fatalf("order index not compacted: %d entries", got)
	}
	pending, _ := repo.PullPending(ctx, 10)
	if len(pending) != 1 || pending[0].ID != head.ID {
		t.Fatalf("expected only the head message, got %+v", pending)
	}
}

func TestStore_TransactionEventsAppearOnCommitOnly(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	msg, _ := domain.NewOrderDeletedMessage(1, time.Now())
	err := store.tx(ctx, func(st *state) error {
		st.enqueue(msg)
		return errForeignKey
	})
	if !errors.Is(err, errForeignKey) {
		t.Fatalf("expected rollback error, got %v", err)
	}
	if got := len(store.Outbox()); got != 0 {
		t.Fatalf("rolled back event leaked into outbox: %d", got)
	}

	if err := store.tx(ctx, func(st *state) error {
		st.enqueue(msg)
		return nil
	}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if got := store.Outbox(); len(got) != 1 || got[0].ID != msg.ID {
		t.Fatalf("expected committed event, got %+v", got)
	}
	if store.state.staged != nil {
		t.Fatal("staged events must be cleared after commit")
	}
}
