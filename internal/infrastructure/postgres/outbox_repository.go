package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/alexxvives/JetChance-sub001/internal/domain/outbox"
	"github.com/alexxvives/JetChance-sub001/internal/domain/transaction"
)

type outboxRow struct {
	ID          string    `db:"id"`
	AggregateID string    `db:"aggregate_id"`
	EventType   string    `db:"event_type"`
	Payload     []byte    `db:"payload"`
	Status      string    `db:"status"`
	Attempts    int       `db:"attempts"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r *outboxRow) toEntity() *outbox.Event {
	return &outbox.Event{
		ID: r.ID, AggregateID: r.AggregateID, EventType: r.EventType,
		Payload: r.Payload, Status: outbox.Status(r.Status), Attempts: r.Attempts,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

// OutboxRepository は送信待ちイベントのPostgreSQL実装
type OutboxRepository struct{ db *sqlx.DB }

func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, tx transaction.Tx, e *outbox.Event) error {
	sqlTx, err := UnwrapTx(tx)
	if err != nil {
		return transaction.Wrap("outbox.Create", err)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO outbox_events (id, aggregate_id, event_type, payload, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.AggregateID, e.EventType, []byte(e.Payload), string(e.Status), e.Attempts, e.CreatedAt, e.UpdatedAt,
	)
	return transaction.Wrap("outbox.Create", err)
}

// ClaimBatch は FOR UPDATE SKIP LOCKED で他のワーカーが処理中の行を飛ばして取得する
// updated_at が reclaimAfter より古い processing の行は取り残されたものとして再取得する
func (r *OutboxRepository) ClaimBatch(ctx context.Context, limit int, reclaimAfter time.Duration) ([]*outbox.Event, error) {
	query := `
		WITH claimed AS (
			SELECT id
			FROM outbox_events
			WHERE status = 'new'
			   OR (status = 'processing' AND updated_at < NOW() - make_interval(secs => $2))
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_events
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (SELECT id FROM claimed)
		RETURNING id, aggregate_id, event_type, payload, status, attempts, created_at, updated_at
	`
	var rows []outboxRow
	if err := r.db.SelectContext(ctx, &rows, query, limit, reclaimAfter.Seconds()); err != nil {
		return nil, transaction.Wrap("outbox.ClaimBatch", err)
	}
	events := make([]*outbox.Event, len(rows))
	for i := range rows {
		events[i] = rows[i].toEntity()
	}
	return events, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = 'published', updated_at = NOW() WHERE id = ANY($1)`,
		pq.Array(ids))
	return transaction.Wrap("outbox.MarkPublished", err)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = 'new', attempts = attempts + 1, updated_at = NOW() WHERE id = ANY($1)`,
		pq.Array(ids))
	return transaction.Wrap("outbox.MarkFailed", err)
}

var _ outbox.Repository = (*OutboxRepository)(nil)
