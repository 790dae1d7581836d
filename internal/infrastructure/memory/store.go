// Package memory はプロセス内で完結するフライト在庫ストアと予約台帳
// PostgreSQL 実装と同じ原子性（条件付き更新・ロールバック）を1つのミューテックスで保証する
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/alexxvives/JetChance-sub001/internal/domain/booking"
	"github.com/alexxvives/JetChance-sub001/internal/domain/flight"
	"github.com/alexxvives/JetChance-sub001/internal/domain/outbox"
	"github.com/alexxvives/JetChance-sub001/internal/domain/transaction"
)

var (
	errTxRequired = errors.New("このストアのトランザクションが必要です")
	errTxDone     = errors.New("トランザクションは既に終了しています")
)

// Store はフライト・予約・送信待ちイベントを保持する
// トランザクション中は mu を保持し続けるため、トランザクション内でトランザクション外の読み取りを呼んではいけない
type Store struct {
	mu sync.Mutex

	flights        map[string]*flight.Flight
	bookings       map[string]*booking.Booking
	bookingOrder   []string
	idempotencyIdx map[string]string
	events         []*outbox.Event

	faults map[string]error
}

// NewStore は空のストアを作成する
func NewStore() *Store {
	return &Store{
		flights:        make(map[string]*flight.Flight),
		bookings:       make(map[string]*booking.Booking),
		idempotencyIdx: make(map[string]string),
		faults:         make(map[string]error),
	}
}

// FailOn は次回の op 呼び出しで err を返すようにする（障害時の挙動確認用）
// op はリポジトリのメソッド名（例: "booking.Create"）
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// fault は登録された障害を1回だけ返す。mu を保持した状態で呼ぶ
func (s *Store) fault(op string) error {
	err, ok := s.faults[op]
	if !ok {
		return nil
	}
	delete(s.faults, op)
	return transaction.Wrap(op, err)
}

// Begin はトランザクションを開始する
func (s *Store) Begin(ctx context.Context) (transaction.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, transaction.Wrap("tx.Begin", err)
	}
	s.mu.Lock()
	if err := s.fault("tx.Begin"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	return &memTx{store: s}, nil
}

// memTx は変更の取り消し手順を記録し、Rollback 時に逆順で適用する
type memTx struct {
	store *Store
	undo  []func()
	done  bool
}

func (t *memTx) Commit() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	defer t.store.mu.Unlock()
	if err := t.store.fault("tx.Commit"); err != nil {
		t.rollback()
		return err
	}
	t.undo = nil
	return nil
}

// Rollback はコミット済みの場合は何もしない
func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.rollback()
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

// txOf は tx がこのストアの有効なトランザクションかを確認する
func (s *Store) txOf(op string, tx transaction.Tx) (*memTx, error) {
	t, ok := tx.(*memTx)
	if !ok || t.store != s {
		return nil, transaction.Wrap(op, errTxRequired)
	}
	if t.done {
		return nil, transaction.Wrap(op, errTxDone)
	}
	return t, nil
}

var _ transaction.Manager = (*Store)(nil)
