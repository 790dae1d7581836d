package outbox

import (
	"encoding/json"
	"time"
)

// Status は送信待ちイベントの状態
type Status string

const (
	StatusNew        Status = "new"
	StatusProcessing Status = "processing"
	StatusPublished  Status = "published"
)

// 予約のライフサイクルイベント種別
const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
)

// Event は予約と同じトランザクションで記録され、リレーワーカーが Kafka に送信する
type Event struct {
	ID          string
	AggregateID string // パーティションキー（フライトID）
	EventType   string
	Payload     json.RawMessage
	Status      Status
	Attempts    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewEvent はペイロードを JSON にエンコードして送信待ちイベントを作成する
func NewEvent(aggregateID, eventType string, payload any) (*Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Event{
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     body,
		Status:      StatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// BookingPayload は予約イベントの本文
type BookingPayload struct {
	BookingID       string    `json:"booking_id"`
	FlightID        string    `json:"flight_id"`
	CustomerID      string    `json:"customer_id"`
	TotalPassengers int       `json:"total_passengers"`
	TotalAmount     int64     `json:"total_amount"`
	Status          string    `json:"status"`
	OccurredAt      time.Time `json:"occurred_at"`
}
