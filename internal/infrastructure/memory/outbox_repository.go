package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/alexxvives/JetChance-sub001/internal/domain/outbox"
	"github.com/alexxvives/JetChance-sub001/internal/domain/transaction"
)

// OutboxRepository は Store 上の送信待ちイベント
type OutboxRepository struct {
	store *Store
}

// Outbox は送信待ちイベントのリポジトリを返す
func (s *Store) Outbox() *OutboxRepository {
	return &OutboxRepository{store: s}
}

func (r *OutboxRepository) Create(ctx context.Context, tx transaction.Tx, e *outbox.Event) error {
	s := r.store
	t, err := s.txOf("outbox.Create", tx)
	if err != nil {
		return err
	}
	if err := s.fault("outbox.Create"); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	c := *e
	s.events = append(s.events, &c)
	t.onRollback(func() { s.events = s.events[:len(s.events)-1] })
	return nil
}

func (r *OutboxRepository) ClaimBatch(ctx context.Context, limit int, reclaimAfter time.Duration) ([]*outbox.Event, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("outbox.ClaimBatch"); err != nil {
		return nil, err
	}

	now := time.Now()
	var claimed []*outbox.Event
	for _, e := range s.events {
		if len(claimed) >= limit {
			break
		}
		stale := e.Status == outbox.StatusProcessing && e.UpdatedAt.Before(now.Add(-reclaimAfter))
		if e.Status != outbox.StatusNew && !stale {
			continue
		}
		e.Status = outbox.StatusProcessing
		e.UpdatedAt = now
		c := *e
		claimed = append(claimed, &c)
	}
	return claimed, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []string) error {
	return r.mark("outbox.MarkPublished", ids, func(e *outbox.Event) {
		e.Status = outbox.StatusPublished
	})
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, ids []string) error {
	return r.mark("outbox.MarkFailed", ids, func(e *outbox.Event) {
		e.Status = outbox.StatusNew
		e.Attempts++
	})
}

func (r *OutboxRepository) mark(op string, ids []string, apply func(e *outbox.Event)) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(op); err != nil {
		return err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for _, e := range s.events {
		if _, ok := set[e.ID]; ok {
			apply(e)
			e.UpdatedAt = time.Now()
		}
	}
	return nil
}

// Events は記録されたイベントの複製を返す
func (r *OutboxRepository) Events() []*outbox.Event {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*outbox.Event, len(s.events))
	for i, e := range s.events {
		c := *e
		result[i] = &c
	}
	return result
}

var _ outbox.Repository = (*OutboxRepository)(nil)
