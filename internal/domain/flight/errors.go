package flight

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest は入力不正を表す。個別の検証エラーはこれをラップする
var ErrInvalidRequest = errors.New("不正なリクエストです")

// Flight ドメインのエラー定義
var (
	ErrFlightNotFound             = errors.New("フライトが見つかりません")
	ErrFlightNotBookable          = errors.New("フライトは予約を受け付けていません")
	ErrInsufficientSeats          = errors.New("空席が不足しています")
	ErrInvalidTransition          = errors.New("フライトの状態遷移が不正です")
	ErrSeatRestoreExceedsCapacity = errors.New("座席の返却数が総座席数を超えます")

	ErrOperatorIDRequired    = fmt.Errorf("%w: 運航者IDは必須です", ErrInvalidRequest)
	ErrRouteRequired         = fmt.Errorf("%w: 出発地と到着地は必須です", ErrInvalidRequest)
	ErrSameOriginDestination = fmt.Errorf("%w: 出発地と到着地が同じです", ErrInvalidRequest)
	ErrInvalidTotalSeats     = fmt.Errorf("%w: 総座席数は1以上である必要があります", ErrInvalidRequest)
	ErrInvalidAvailableSeats = fmt.Errorf("%w: 空席数は0以上かつ総座席数以下である必要があります", ErrInvalidRequest)
	ErrInvalidPrice          = fmt.Errorf("%w: 価格は0以上である必要があります", ErrInvalidRequest)
	ErrInvalidSchedule       = fmt.Errorf("%w: 到着時刻は出発時刻より後である必要があります", ErrInvalidRequest)
	ErrInvalidStatus         = fmt.Errorf("%w: フライトの状態が不正です", ErrInvalidRequest)
	ErrInvalidSeatCount      = fmt.Errorf("%w: 座席数は1以上である必要があります", ErrInvalidRequest)
)
