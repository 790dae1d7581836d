package transaction

import (
	"context"
	"errors"
)

// Tx はトランザクションを表すインターフェース
// ドメイン層がインフラ層（sqlx等）に依存しないようにするための抽象化
type Tx interface {
	// Commit はトランザクションをコミットする
	Commit() error
	// Rollback はトランザクションをロールバックする
	Rollback() error
}

// Manager はトランザクションを管理するインターフェース
type Manager interface {
	// Begin は新しいトランザクションを開始する
	Begin(ctx context.Context) (Tx, error)
}

// ErrStorageFailure は永続化層に到達できない、またはコミットできなかったことを表す
// 部分的な状態は残らないため、呼び出し側は冪等に再試行できる
var ErrStorageFailure = errors.New("ストレージ障害が発生しました")

// StorageError はドライバーのエラーを操作名と一緒に保持する
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is は errors.Is(err, ErrStorageFailure) を満たす
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageFailure
}

// Wrap はドライバーのエラーを StorageError でラップする
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
