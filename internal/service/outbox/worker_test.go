package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/metrics"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/memory"
)

// fakeOutbox хранит события в порядке постановки и помнит их статусы.
type fakeOutbox struct {
	mu     sync.Mutex
	queue  []domain.OutboxMessage
	status map[string]string
}

func newFakeOutbox(msgs ...domain.OutboxMessage) *fakeOutbox {
	return &fakeOutbox{queue: msgs, status: make(map[string]string)}
}

func (f *fakeOutbox) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.OutboxMessage
	for _, msg := range f.queue {
		if _, done := f.status[msg.ID]; done {
			continue
		}
		out = append(out, msg)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeOutbox) Stats(context.Context) (domain.OutboxStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stats domain.OutboxStats
	for _, msg := range f.queue {
		if _, done := f.status[msg.ID]; !done {
			stats.PendingCount++
		}
	}
	return stats, nil
}

func (f *fakeOutbox) MarkSent(_ context.Context, id string) error {
	return f.mark(id, domain.OutboxStatusSent)
}

func (f *fakeOutbox) MarkFailed(_ context.Context, id string) error {
	return f.mark(id, domain.OutboxStatusFailed)
}

func (f *fakeOutbox) mark(id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[id] = status
	return nil
}

func (f *fakeOutbox) statusOf(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status[id]
}

// recordingPublisher запоминает опубликованные события; fail решает, какое из них вернуть с ошибкой.
type recordingPublisher struct {
	mu   sync.Mutex
	sent []domain.OutboxMessage
	hits int
	fail func(msg domain.OutboxMessage, call int) error
}

func (p *recordingPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hits++
	if p.fail != nil {
		if err := p.fail(msg, p.hits); err != nil {
			return err
		}
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *recordingPublisher) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, len(p.sent))
	for i, msg := range p.sent {
		ids[i] = msg.ID
	}
	return ids
}

var (
	_ domain.OutboxRepository = (*fakeOutbox)(nil)
	_ domain.OutboxPublisher  = (*recordingPublisher)(nil)
)

func orderEvent(id, orderID string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: domain.AggregateOrder,
		AggregateID:   orderID,
		EventType:     domain.EventOrderUpdated,
		Payload:       []byte(`{"order_id":` + orderID + `}`),
	}
}

func sameIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestWorker_DrainRetriesTransientErrors(t *testing.T) {
	repo := newFakeOutbox(orderEvent("evt-1", "1"))
	publisher := &recordingPublisher{fail: func(_ domain.OutboxMessage, call int) error {
		if call < 3 {
			return errors.New("broker not ready")
		}
		return nil
	}}

	res := NewWorker(repo, publisher, Config{MaxAttempts: 3}, nil, nil).Drain(context.Background())

	if res != (Result{Sent: 1}) {
		t.Fatalf("unexpected result %+v", res)
	}
	if publisher.hits != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", publisher.hits)
	}
	if got := repo.statusOf("evt-1"); got != domain.OutboxStatusSent {
		t.Fatalf("expected sent status, got %q", got)
	}
}

func TestWorker_DrainDeadLettersExhaustedEvent(t *testing.T) {
	failedAt := time.Date(2025, time.August, 12, 11, 0, 0, 0, time.UTC)
	repo := newFakeOutbox(orderEvent("evt-1", "7"))
	publisher := &recordingPublisher{fail: func(domain.OutboxMessage, int) error {
		return errors.New("topic is read-only")
	}}
	dlq := &recordingPublisher{}

	worker := NewWorker(repo, publisher, Config{MaxAttempts: 2, DeadLetters: dlq}, nil, nil)
	worker.now = func() time.Time { return failedAt }
	res := worker.Drain(context.Background())

	if res != (Result{Failed: 1}) {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := repo.statusOf("evt-1"); got != domain.OutboxStatusFailed {
		t.Fatalf("expected failed status, got %q", got)
	}
	if len(dlq.sent) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(dlq.sent))
	}

	letterMsg := dlq.sent[0]
	if letterMsg.ID != "evt-1" || letterMsg.AggregateID != "7" {
		t.Fatalf("dead letter must keep event identity, got %+v", letterMsg)
	}
	var letter DeadLetter
	if err := json.Unmarshal(letterMsg.Payload, &letter); err != nil {
		t.Fatalf("decode dead letter: %v", err)
	}
	if letter.OrderID != "7" || letter.Attempts != 2 || !letter.FailedAt.Equal(failedAt) {
		t.Fatalf("unexpected dead letter %+v", letter)
	}
	if string(letter.Payload) != `{"order_id":7}` {
		t.Fatalf("original payload lost: %s", letter.Payload)
	}
	if letter.Error == "" {
		t.Fatal("dead letter must carry the publish error")
	}
}

func TestWorker_DrainKeepsOrderOfEventsPerOrder(t *testing.T) {
	repo := newFakeOutbox(
		orderEvent("a1", "1"),
		orderEvent("a2", "1"),
		orderEvent("b1", "2"),
	)
	brokerDown := true
	publisher := &recordingPublisher{fail: func(msg domain.OutboxMessage, _ int) error {
		if msg.ID == "a1" && brokerDown {
			return errors.New("partition leader moved")
		}
		return nil
	}}
	worker := NewWorker(repo, publisher, Config{MaxAttempts: 1}, nil, nil)

	res := worker.Drain(context.Background())
	if res != (Result{Sent: 1, Failed: 1, Deferred: 1}) {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := publisher.ids(); !sameIDs(got, []string{"b1"}) {
		t.Fatalf("later event of the failed order must wait, published %v", got)
	}
	if got := repo.statusOf("a2"); got != "" {
		t.Fatalf("deferred event must stay pending, got %q", got)
	}

	brokerDown = false
	if res := worker.Drain(context.Background()); res != (Result{Sent: 1}) {
		t.Fatalf("unexpected second pass %+v", res)
	}
	if got := publisher.ids(); !sameIDs(got, []string{"b1", "a2"}) {
		t.Fatalf("unexpected publish order %v", got)
	}
}

func TestWorker_DrainCancelDuringBackoffLeavesEventPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := newFakeOutbox(orderEvent("evt-1", "1"))
	publisher := &recordingPublisher{fail: func(domain.OutboxMessage, int) error {
		cancel()
		return errors.New("broker not ready")
	}}

	res := NewWorker(repo, publisher, Config{MaxAttempts: 5, RetryBaseDelay: time.Hour}, nil, nil).Drain(ctx)

	if res != (Result{}) {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := repo.statusOf("evt-1"); got != "" {
		t.Fatalf("event must stay pending after cancel, got %q", got)
	}
}

func TestWorker_Backoff(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{name: "disabled", base: 0, attempt: 3, want: 0},
		{name: "first retry", base: 50 * time.Millisecond, attempt: 1, want: 50 * time.Millisecond},
		{name: "doubles", base: 50 * time.Millisecond, attempt: 3, want: 200 * time.Millisecond},
		{name: "capped", base: 4 * time.Second, attempt: 3, want: maxRetryDelay},
		{name: "large attempt", base: time.Millisecond, attempt: 200, want: maxRetryDelay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWorker(nil, nil, Config{RetryBaseDelay: tt.base}, nil, nil)
			if got := w.backoff(tt.attempt); got != tt.want {
				t.Fatalf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{RetryBaseDelay: -time.Second}.withDefaults()
	if cfg.PollInterval != time.Second || cfg.BatchSize != 100 || cfg.MaxAttempts != 3 || cfg.RetryBaseDelay != 0 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	worker := NewWorker(newFakeOutbox(), &recordingPublisher{}, Config{PollInterval: 5 * time.Millisecond}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

// publishedCount читает счётчик результата публикации из реестра.
func publishedCount(t *testing.T, reg *prometheus.Registry, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "orderdesk_order_events_published_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestWorker_DrainsMemoryOutbox(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	orders := memory.NewOrderRepository(store)
	outboxRepo := memory.NewOutboxRepository(store)

	order, err := orders.Create(ctx, domain.Order{Name: "Office"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := orders.Update(ctx, order.ID, domain.OrderPatch{Description: ptr("updated")}); err != nil {
		t.Fatal(err)
	}
	if err := orders.Delete(ctx, order.ID); err != nil {
		t.Fatal(err)
	}

	reg := prometheus.NewRegistry()
	publisher := &recordingPublisher{}
	worker := NewWorker(outboxRepo, publisher, Config{}, nil, metrics.NewOutboxMetricsWithRegisterer(reg))

	if res := worker.Drain(ctx); res != (Result{Sent: 2}) {
		t.Fatalf("unexpected result %+v", res)
	}
	if publisher.sent[0].EventType != domain.EventOrderUpdated || publisher.sent[1].EventType != domain.EventOrderDeleted {
		t.Fatalf("events out of order: %s, %s", publisher.sent[0].EventType, publisher.sent[1].EventType)
	}
	stats, err := outboxRepo.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.PendingCount != 0 {
		t.Fatalf("expected empty backlog, got %d", stats.PendingCount)
	}
	if got := publishedCount(t, reg, metrics.PublishSent); got != 2 {
		t.Fatalf("expected 2 sent events in metrics, got %v", got)
	}
}

func TestLogPublisher(t *testing.T) {
	publisher := NewLogPublisher(nil)
	if err := publisher.Publish(context.Background(), orderEvent("m", "1")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := publisher.Publish(ctx, orderEvent("m", "1")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func ptr[T any](v T) *T { return &v }
