package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQL のエラーコード
const (
	codeUniqueViolation     = "23505"
	codeCheckViolation      = "23514"
	codeInvalidTextRepr     = "22P02"
	codeForeignKeyViolation = "23503"
)

func pqCode(err error) string {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return string(pgErr.Code)
	}
	return ""
}

// isUniqueViolation は一意制約違反かを返す
func isUniqueViolation(err error) bool {
	return pqCode(err) == codeUniqueViolation
}

// isInvalidID は UUID として解釈できないIDが渡されたかを返す（存在しない扱いにする）
func isInvalidID(err error) bool {
	return pqCode(err) == codeInvalidTextRepr
}

// isCheckViolation は CHECK 制約違反かを返す
func isCheckViolation(err error) bool {
	return pqCode(err) == codeCheckViolation
}

// isForeignKeyViolation は外部キー制約違反かを返す
func isForeignKeyViolation(err error) bool {
	return pqCode(err) == codeForeignKeyViolation
}
