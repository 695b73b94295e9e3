package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

type outboxRepository struct {
	base
}

// NewOutboxRepository создаёт SQL-реализацию outbox.
func NewOutboxRepository(db *sql.DB, dialect Dialect, opts ...Option) domain.OutboxRepository {
	return &outboxRepository{base: newBase(db, dialect, opts)}
}

// enqueueOutbox пишет сообщение в outbox в рамках транзакции вызывающего.
func enqueueOutbox(ctx context.Context, q querier, b base, msg domain.OutboxMessage) error {
	if _, err := q.ExecContext(ctx, b.q(`
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload, status, attempt_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	`),
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload,
		domain.OutboxStatusPending, b.ts(msg.CreatedAt), b.ts(msg.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox_messages
		WHERE status = ?
		ORDER BY created_at, id
		LIMIT ?
	`), domain.OutboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending outbox: %w", err)
	}
	defer rows.Close()

	result := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(
			&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload,
			timestamp{&msg.CreatedAt},
		); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}

	return result, nil
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var stats domain.OutboxStats
	if err := r.db.QueryRowContext(ctx, r.q(`
		SELECT COUNT(*), MIN(created_at)
		FROM outbox_messages
		WHERE status = ?
	`), domain.OutboxStatusPending).Scan(&stats.PendingCount, timestamp{&stats.OldestPendingAt}); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats query failed: %w", err)
	}

	return stats, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, domain.OutboxStatusSent)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, domain.OutboxStatusFailed)
}

func (r *outboxRepository) markStatus(ctx context.Context, id, status string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, r.q(`
		UPDATE outbox_messages
		SET status = ?,
		    attempt_count = attempt_count + 1,
		    updated_at = ?
		WHERE id = ?
	`), status, r.ts(r.now()), id)
	if err != nil {
		return fmt.Errorf("mark outbox message as %s: %w", status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for outbox %s: %w", status, err)
	}
	if affected == 0 {
		return domain.ErrOutboxPublish
	}

	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
