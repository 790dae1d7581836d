package flight

import (
	"context"
	"time"

	"github.com/alexxvives/JetChance-sub001/internal/domain/transaction"
)

// SearchQuery はフライト検索条件
type SearchQuery struct {
	Origin       string
	Destination  string
	DepartureOn  time.Time // ゼロ値なら日付で絞り込まない
	MinSeats     int
	BookableOnly bool
	Limit        int
	Offset       int
}

// Repository はフライト在庫ストアのインターフェース
// available_seats を書き換えるのは DecrementSeats と RestoreSeats のみ
type Repository interface {
	// Create は新しいフライトを作成する
	Create(ctx context.Context, f *Flight) error

	// GetByID はIDからフライトを取得する
	GetByID(ctx context.Context, id string) (*Flight, error)

	// Search は条件に一致するフライト一覧を取得する
	Search(ctx context.Context, q SearchQuery) ([]*Flight, error)

	// UpdateStatus は運航者・管理者による状態遷移を行う（座席数は変更しない）
	UpdateStatus(ctx context.Context, id string, to Status) (*Flight, error)

	// DecrementSeats は空席数 >= count の場合のみ原子的に減算し状態を再計算する（トランザクション必須）
	DecrementSeats(ctx context.Context, tx transaction.Tx, id string, count int) (*Flight, error)

	// RestoreSeats は空席数 + count <= 総座席数 の場合のみ原子的に加算する（トランザクション必須）
	RestoreSeats(ctx context.Context, tx transaction.Tx, id string, count int) (*Flight, error)
}
