package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/metrics"
)

const maxRetryDelay = 5 * time.Second

// Config задаёт параметры доставки событий заказов.
type Config struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	// DeadLetters получает события, которые не ушли за MaxAttempts попыток. Nil отключает DLQ.
	DeadLetters domain.OutboxPublisher
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	c.RetryBaseDelay = max(c.RetryBaseDelay, 0)
	return c
}

// Result — итог одного прохода по outbox.
type Result struct {
	Sent     int
	Failed   int
	Deferred int
}

// Worker переносит события заказов из outbox в брокер.
// События одного заказа уходят в порядке постановки: если событие заказа не опубликовано,
// следующие события этого заказа ждут следующего прохода.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	cfg       Config
	logger    *log.Entry
	metrics   *metrics.OutboxMetrics
	now       func() time.Time
}

// NewWorker создаёт worker. Метрики необязательны.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, cfg Config, logger *log.Entry, m *metrics.OutboxMetrics) *Worker {
	if logger == nil {
		logger = log.WithField("component", "outbox-worker")
	}
	return &Worker{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Run разбирает outbox каждые PollInterval до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}
	w.logger.WithField("poll_interval", w.cfg.PollInterval).Info("outbox worker started")
	defer w.logger.Info("outbox worker stopped")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if res := w.Drain(ctx); res.Failed > 0 || res.Deferred > 0 {
			w.logger.WithFields(log.Fields{
				"sent":     res.Sent,
				"failed":   res.Failed,
				"deferred": res.Deferred,
			}).Warn("order events not fully delivered")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Drain публикует одну пачку pending-событий.
// При отмене ctx недоставленные события остаются pending.
func (w *Worker) Drain(ctx context.Context) Result {
	var res Result
	if ctx.Err() != nil {
		return res
	}
	w.refreshBacklog(ctx)
	defer w.refreshBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending order events")
		return res
	}

	stalled := make(map[string]struct{})
	for _, msg := range batch {
		key := orderKey(msg)
		if _, ok := stalled[key]; ok && key != "" {
			res.Deferred++
			w.metrics.RecordPublish(metrics.PublishDeferred)
			continue
		}

		err := w.publish(ctx, msg)
		if err == nil {
			res.Sent++
			if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
				w.logger.WithError(err).WithField("outbox_id", msg.ID).Warn("failed to mark order event as sent")
			}
			continue
		}
		if ctx.Err() != nil {
			return res
		}
		res.Failed++
		stalled[key] = struct{}{}
		w.fail(ctx, msg, err)
	}
	return res
}

func orderKey(msg domain.OutboxMessage) string {
	if msg.AggregateID == "" {
		return ""
	}
	return msg.AggregateType + "/" + msg.AggregateID
}

func (w *Worker) publish(ctx context.Context, msg domain.OutboxMessage) error {
	var err error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		if err = w.publisher.Publish(ctx, msg); err == nil {
			w.metrics.RecordPublish(metrics.PublishSent)
			return nil
		}
		if attempt == w.cfg.MaxAttempts {
			break
		}
		w.metrics.RecordPublish(metrics.PublishRetried)

		if delay := w.backoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("publish %s after %d attempts: %w", msg.EventType, w.cfg.MaxAttempts, err)
}

// backoff удваивает задержку после каждой попытки, не превышая maxRetryDelay.
func (w *Worker) backoff(attempt int) time.Duration {
	delay := w.cfg.RetryBaseDelay
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func (w *Worker) fail(ctx context.Context, msg domain.OutboxMessage, cause error) {
	w.metrics.RecordPublish(metrics.PublishFailed)
	entry := w.logger.WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"order_id":   msg.AggregateID,
		"event_type": msg.EventType,
	})
	entry.WithError(cause).Error("order event not delivered")

	if w.cfg.DeadLetters != nil {
		if err := w.deadLetter(ctx, msg, cause); err != nil {
			w.metrics.RecordPublish(metrics.PublishDLQFailed)
			entry.WithError(err).Warn("failed to dead-letter order event")
		} else {
			w.metrics.RecordPublish(metrics.PublishDeadLetter)
		}
	}
	if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
		entry.WithError(err).Warn("failed to mark order event as failed")
	}
}

// DeadLetter — тело события, отправленного в DLQ.
type DeadLetter struct {
	OutboxID  string          `json:"outbox_id"`
	OrderID   string          `json:"order_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Attempts  int             `json:"attempts"`
	FailedAt  time.Time       `json:"failed_at"`
}

func (w *Worker) deadLetter(ctx context.Context, msg domain.OutboxMessage, cause error) error {
	body, err := json.Marshal(DeadLetter{
		OutboxID:  msg.ID,
		OrderID:   msg.AggregateID,
		EventType: msg.EventType,
		Payload:   json.RawMessage(msg.Payload),
		Error:     cause.Error(),
		Attempts:  w.cfg.MaxAttempts,
		FailedAt:  w.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	letter := msg
	letter.Payload = body
	if err := w.cfg.DeadLetters.Publish(ctx, letter); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	if w.metrics == nil || ctx.Err() != nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog")
		return
	}
	var lag time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		lag = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetBacklog(stats.PendingCount, lag)
}
