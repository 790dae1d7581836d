package outbox

import (
	"context"
	"time"

	"github.com/alexxvives/JetChance-sub001/internal/domain/transaction"
)

// Repository は送信待ちイベントのインターフェース
type Repository interface {
	// Create はイベントを記録する（予約と同じトランザクション）
	Create(ctx context.Context, tx transaction.Tx, e *Event) error

	// ClaimBatch は送信待ちのイベントを最大 limit 件取得し処理中にする
	// 処理中のまま reclaimAfter 以上経過したイベント（記録失敗やワーカー停止で残ったもの）も再取得する
	// 複数のワーカーが同じイベントを同時に取得することはない
	ClaimBatch(ctx context.Context, limit int, reclaimAfter time.Duration) ([]*Event, error)

	// MarkPublished は送信済みにする
	MarkPublished(ctx context.Context, ids []string) error

	// MarkFailed は送信待ちに戻し試行回数を加算する
	MarkFailed(ctx context.Context, ids []string) error
}
