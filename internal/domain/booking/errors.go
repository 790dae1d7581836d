package booking

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest は入力不正を表す。個別の検証エラーはこれをラップする
var ErrInvalidRequest = errors.New("不正なリクエストです")

// Booking ドメインのエラー定義
var (
	ErrBookingNotFound             = errors.New("予約が見つかりません")
	ErrInvalidTransition           = errors.New("予約の状態遷移が不正です")
	ErrBookingAlreadyCancelled     = fmt.Errorf("%w: 予約は既にキャンセルされています", ErrInvalidTransition)
	ErrIdempotencyKeyAlreadyExists = errors.New("同じ冪等性キーの予約が既に存在します")

	ErrFlightIDRequired      = fmt.Errorf("%w: フライトIDは必須です", ErrInvalidRequest)
	ErrCustomerIDRequired    = fmt.Errorf("%w: 顧客IDは必須です", ErrInvalidRequest)
	ErrInvalidPassengerCount = fmt.Errorf("%w: 搭乗者数は1以上である必要があります", ErrInvalidRequest)
	ErrInvalidAmount         = fmt.Errorf("%w: 金額は0以上である必要があります", ErrInvalidRequest)
)
