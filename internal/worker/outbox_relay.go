package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alexxvives/JetChance-sub001/internal/domain/outbox"
	"github.com/alexxvives/JetChance-sub001/internal/pkg/logger"
	"github.com/alexxvives/JetChance-sub001/internal/pkg/metrics"
)

// Publisher は予約イベントの送信先
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, value []byte) error
}

// OutboxRelay は送信待ちイベントを定期的に取得してブローカーに送信するワーカー
type OutboxRelay struct {
	repo        outbox.Repository
	publisher   Publisher
	metrics     *metrics.Metrics
	interval    time.Duration
	batchSize   int
	sendTimeout time.Duration
	// 処理中のまま残ったイベントを再取得するまでの時間
	reclaimAfter time.Duration
	stopOnce    sync.Once
	stopCh      chan struct{}
	doneCh      chan struct{}
}

const defaultReclaimAfter = 10 * time.Minute

// RelayOption はリレーのオプション
type RelayOption func(*OutboxRelay)

// WithReclaimAfter は処理中のまま残ったイベントを再送するまでの時間を設定する
// 1回のバッチ送信にかかる時間（batchSize × 送信タイムアウト）より長くする
func WithReclaimAfter(d time.Duration) RelayOption {
	return func(r *OutboxRelay) {
		if d > 0 {
			r.reclaimAfter = d
		}
	}
}

// NewOutboxRelay は新しいリレーを作成
func NewOutboxRelay(repo outbox.Repository, publisher Publisher, m *metrics.Metrics, interval time.Duration, batchSize int, opts ...RelayOption) *OutboxRelay {
	r := &OutboxRelay{
		repo:         repo,
		publisher:    publisher,
		metrics:      m,
		interval:     interval,
		batchSize:    batchSize,
		sendTimeout:  5 * time.Second,
		reclaimAfter: defaultReclaimAfter,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start はリレーを開始（Stop が呼ばれるかコンテキストがキャンセルされるまでブロックする）
func (r *OutboxRelay) Start(ctx context.Context) {
	logger.Info("予約イベントリレー開始",
		zap.Duration("interval", r.interval),
		zap.Int("batch_size", r.batchSize),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer close(r.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("予約イベントリレー停止（コンテキストキャンセル）")
			return
		case <-r.stopCh:
			logger.Info("予約イベントリレー停止（シグナル受信）")
			return
		case <-ticker.C:
			r.relay(ctx)
		}
	}
}

// Stop はリレーを停止し、処理中のバッチの完了を待つ
func (r *OutboxRelay) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

// relay は1バッチ分のイベントを送信し、送信できた件数を返す
func (r *OutboxRelay) relay(ctx context.Context) int {
	log := logger.Get()

	events, err := r.repo.ClaimBatch(ctx, r.batchSize, r.reclaimAfter)
	if err != nil {
		log.Error("送信待ちイベントの取得失敗", zap.Error(err))
		return 0
	}
	if len(events) == 0 {
		return 0
	}

	var published, failed []string
	for _, e := range events {
		sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
		err := r.publisher.Publish(sendCtx, e.AggregateID, e.EventType, e.Payload)
		cancel()
		if err != nil {
			log.Warn("予約イベントの送信失敗",
				zap.String("event_id", e.ID),
				zap.String("event_type", e.EventType),
				zap.Int("attempts", e.Attempts+1),
				zap.Error(err),
			)
			failed = append(failed, e.ID)
			continue
		}
		published = append(published, e.ID)
	}

	// 記録に失敗したイベントは処理中のまま残り、reclaimAfter 経過後に再送される（受信側は booking_id で重複排除する）
	if err := r.repo.MarkPublished(ctx, published); err != nil {
		log.Error("送信済みの記録に失敗", zap.Int("count", len(published)), zap.Error(err))
	}
	if err := r.repo.MarkFailed(ctx, failed); err != nil {
		log.Error("送信失敗の記録に失敗", zap.Int("count", len(failed)), zap.Error(err))
	}

	if r.metrics != nil {
		r.metrics.OutboxEventsPublished.WithLabelValues("published").Add(float64(len(published)))
		r.metrics.OutboxEventsPublished.WithLabelValues("failed").Add(float64(len(failed)))
	}
	log.Debug("予約イベントを送信", zap.Int("published", len(published)), zap.Int("failed", len(failed)))
	return len(published)
}

// LogPublisher はブローカーを使わない環境でイベントをログに出力する
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, key, eventType string, value []byte) error {
	logger.Info("予約イベント",
		zap.String("key", key),
		zap.String("event_type", eventType),
		zap.ByteString("payload", value),
	)
	return nil
}
