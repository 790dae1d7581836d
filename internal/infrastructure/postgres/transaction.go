package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/alexxvives/JetChance-sub001/internal/domain/transaction"
)

// errTxRequired はリポジトリに TxManager 以外のトランザクションが渡された場合のエラー
var errTxRequired = errors.New("postgres のトランザクションが必要です")

// TxWrapper は sqlx.Tx を transaction.Tx インターフェースでラップする
type TxWrapper struct {
	*sqlx.Tx
}

// Commit はトランザクションをコミットする
func (t *TxWrapper) Commit() error {
	return transaction.Wrap("tx.Commit", t.Tx.Commit())
}

// Rollback はトランザクションをロールバックする
// コミット済みの場合は何もしない（defer での呼び出しを想定）
func (t *TxWrapper) Rollback() error {
	if err := t.Tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return transaction.Wrap("tx.Rollback", err)
	}
	return nil
}

// TxManager は sqlx.DB を使用したトランザクションマネージャー
type TxManager struct {
	db *sqlx.DB
}

// NewTxManager は新しい TxManager を作成する
func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// Begin は READ COMMITTED のトランザクションを開始する
// 座席の競合は条件付き UPDATE の行ロックで直列化されるため、これより強い分離レベルは不要
func (m *TxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, transaction.Wrap("tx.Begin", err)
	}
	return &TxWrapper{Tx: tx}, nil
}

// UnwrapTx は transaction.Tx から sqlx.Tx を取り出す
func UnwrapTx(tx transaction.Tx) (*sqlx.Tx, error) {
	if wrapper, ok := tx.(*TxWrapper); ok && wrapper.Tx != nil {
		return wrapper.Tx, nil
	}
	return nil, errTxRequired
}

var _ transaction.Manager = (*TxManager)(nil)
