package flight

import (
	"strings"
	"time"
)

// Status はフライトの状態を表す
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusActive          Status = "active"
	StatusPartiallyBooked Status = "partially_booked"
	StatusFullyBooked     Status = "fully_booked"
	StatusCancelled       Status = "cancelled"
	StatusCompleted       Status = "completed"
)

// IsValid は定義済みの状態かを返す
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusActive, StatusPartiallyBooked,
		StatusFullyBooked, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// IsTerminal はキャンセル済み・運航済みかを返す（座席数から導出される状態より優先される）
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// IsOnSale は販売中の状態かを返す
func (s Status) IsOnSale() bool {
	return s == StatusActive || s == StatusPartiallyBooked || s == StatusFullyBooked
}

// transitions は運航者・管理者による状態遷移の許可表
// 販売中の3状態間の移動は座席数から DeriveStatus で導出するためここには含めない
var transitions = map[Status][]Status{
	StatusDraft:           {StatusPendingApproval, StatusCancelled},
	StatusPendingApproval: {StatusActive, StatusCancelled},
	StatusActive:          {StatusCancelled, StatusCompleted},
	StatusPartiallyBooked: {StatusCancelled, StatusCompleted},
	StatusFullyBooked:     {StatusCancelled, StatusCompleted},
}

// CanTransition は from から to への遷移が許可されているかを返す
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourcesOf は to へ遷移できる状態の一覧を返す
func SourcesOf(to Status) []Status {
	var sources []Status
	for _, from := range []Status{
		StatusDraft, StatusPendingApproval, StatusActive, StatusPartiallyBooked, StatusFullyBooked,
	} {
		if CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

// DeriveStatus は空席数から販売中の状態を導出する
// 終了状態と販売前の状態はそのまま返す
func DeriveStatus(current Status, available, total int) Status {
	if current.IsTerminal() || !current.IsOnSale() {
		return current
	}
	switch {
	case available <= 0:
		return StatusFullyBooked
	case available < total:
		return StatusPartiallyBooked
	default:
		return StatusActive
	}
}

// Flight は空席便（エンプティレグ）の座席在庫を表す
type Flight struct {
	ID             string
	OperatorID     string
	Origin         string
	Destination    string
	DepartureAt    time.Time
	ArrivalAt      time.Time
	AircraftType   string
	TotalSeats     int
	AvailableSeats int
	PricePerSeat   int64
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewFlight は承認待ちのフライトを作成する
func NewFlight(operatorID, origin, destination, aircraftType string, departureAt, arrivalAt time.Time, totalSeats int, pricePerSeat int64) *Flight {
	now := time.Now()
	return &Flight{
		OperatorID:     operatorID,
		Origin:         strings.ToUpper(strings.TrimSpace(origin)),
		Destination:    strings.ToUpper(strings.TrimSpace(destination)),
		DepartureAt:    departureAt,
		ArrivalAt:      arrivalAt,
		AircraftType:   aircraftType,
		TotalSeats:     totalSeats,
		AvailableSeats: totalSeats,
		PricePerSeat:   pricePerSeat,
		Status:         StatusPendingApproval,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate はフライトの検証を行う
func (f *Flight) Validate() error {
	if f.OperatorID == "" {
		return ErrOperatorIDRequired
	}
	if f.Origin == "" || f.Destination == "" {
		return ErrRouteRequired
	}
	if f.Origin == f.Destination {
		return ErrSameOriginDestination
	}
	if f.TotalSeats <= 0 {
		return ErrInvalidTotalSeats
	}
	if f.AvailableSeats < 0 || f.AvailableSeats > f.TotalSeats {
		return ErrInvalidAvailableSeats
	}
	if f.PricePerSeat < 0 {
		return ErrInvalidPrice
	}
	if !f.ArrivalAt.After(f.DepartureAt) {
		return ErrInvalidSchedule
	}
	if !f.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// IsBookable は予約を受け付ける状態かを返す（満席でも状態としては受付中）
func (f *Flight) IsBookable() bool {
	return f.Status.IsOnSale()
}

// CheckAvailability は予約前の事前チェック
// 並行予約の防止にはならないため、最終的な保証は DecrementSeats が行う
func (f *Flight) CheckAvailability(count int) error {
	if count <= 0 {
		return ErrInvalidSeatCount
	}
	if !f.IsBookable() {
		return ErrFlightNotBookable
	}
	if count > f.AvailableSeats {
		return ErrInsufficientSeats
	}
	return nil
}

// Decrement は空席数を減らして状態を再計算する
// 条件を満たさない場合は何も変更しない
func (f *Flight) Decrement(count int) error {
	if err := f.CheckAvailability(count); err != nil {
		return err
	}
	f.AvailableSeats -= count
	f.Status = DeriveStatus(f.Status, f.AvailableSeats, f.TotalSeats)
	f.UpdatedAt = time.Now()
	return nil
}

// Restore は空席数を戻して状態を再計算する（キャンセル時）
func (f *Flight) Restore(count int) error {
	if count <= 0 {
		return ErrInvalidSeatCount
	}
	if f.AvailableSeats+count > f.TotalSeats {
		return ErrSeatRestoreExceedsCapacity
	}
	f.AvailableSeats += count
	f.Status = DeriveStatus(f.Status, f.AvailableSeats, f.TotalSeats)
	f.UpdatedAt = time.Now()
	return nil
}

// TransitionTo は運航者・管理者による状態遷移を行う
func (f *Flight) TransitionTo(next Status) error {
	if !CanTransition(f.Status, next) {
		return ErrInvalidTransition
	}
	f.Status = DeriveStatus(next, f.AvailableSeats, f.TotalSeats)
	f.UpdatedAt = time.Now()
	return nil
}
