package booking

import (
	"strings"
	"time"
)

// Status は予約の状態を表す
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// transitions は許可された状態遷移
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled},
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
	for _, from := range []Status{StatusPending, StatusConfirmed, StatusCancelled} {
		if CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

// Booking は顧客1名による1フライトの座席予約を表す
type Booking struct {
	ID              string
	FlightID        string
	CustomerID      string
	TotalPassengers int
	TotalAmount     int64
	PaymentMethod   string
	SpecialRequests string
	Status          Status
	ContactEmail    string
	IdempotencyKey  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewBooking は保留中の予約を作成する
func NewBooking(flightID, customerID string, passengers int, amount int64, paymentMethod, contactEmail string) *Booking {
	now := time.Now()
	return &Booking{
		FlightID:        flightID,
		CustomerID:      customerID,
		TotalPassengers: passengers,
		TotalAmount:     amount,
		PaymentMethod:   paymentMethod,
		ContactEmail:    strings.TrimSpace(contactEmail),
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Validate は予約の検証を行う
func (b *Booking) Validate() error {
	if b.FlightID == "" {
		return ErrFlightIDRequired
	}
	if b.CustomerID == "" {
		return ErrCustomerIDRequired
	}
	if b.TotalPassengers <= 0 {
		return ErrInvalidPassengerCount
	}
	if b.TotalAmount < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// IsActive はキャンセルされていない予約かを返す
func (b *Booking) IsActive() bool {
	return b.Status != StatusCancelled
}

// TransitionTo は状態遷移を行う
func (b *Booking) TransitionTo(next Status) error {
	if !CanTransition(b.Status, next) {
		return ErrInvalidTransition
	}
	b.Status = next
	b.UpdatedAt = time.Now()
	return nil
}

// Confirm は予約を確定する（決済成功時）
func (b *Booking) Confirm() error {
	return b.TransitionTo(StatusConfirmed)
}

// Cancel は予約をキャンセルする
func (b *Booking) Cancel() error {
	if b.Status == StatusCancelled {
		return ErrBookingAlreadyCancelled
	}
	return b.TransitionTo(StatusCancelled)
}
