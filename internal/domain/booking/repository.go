package booking

import (
	"context"

	"github.com/alexxvives/JetChance-sub001/internal/domain/transaction"
)

// Repository は予約台帳のインターフェース
// 空席の確認は行わない（ReservationService の責務）
type Repository interface {
	// Create は新しい予約を作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, b *Booking) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Booking, error)

	// GetByIdempotencyKey は冪等性キーから予約を取得する
	GetByIdempotencyKey(ctx context.Context, key string) (*Booking, error)

	// ListByCustomer は顧客の予約一覧を取得する
	ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*Booking, error)

	// ListByFlight はフライトの予約一覧を取得する
	ListByFlight(ctx context.Context, flightID string) ([]*Booking, error)

	// UpdateStatus は現在の状態が許可された遷移元の場合のみ状態を更新する（トランザクション必須）
	UpdateStatus(ctx context.Context, tx transaction.Tx, id string, to Status) (*Booking, error)
}
