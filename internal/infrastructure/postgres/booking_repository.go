package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/alexxvives/JetChance-sub001/internal/domain/booking"
	"github.com/alexxvives/JetChance-sub001/internal/domain/transaction"
)

const bookingColumns = `id, flight_id, customer_id, total_passengers, total_amount, payment_method,
	special_requests, status, contact_email, COALESCE(idempotency_key, '') AS idempotency_key, created_at, updated_at`

type bookingRow struct {
	ID              string    `db:"id"`
	FlightID        string    `db:"flight_id"`
	CustomerID      string    `db:"customer_id"`
	TotalPassengers int       `db:"total_passengers"`
	TotalAmount     int64     `db:"total_amount"`
	PaymentMethod   string    `db:"payment_method"`
	SpecialRequests string    `db:"special_requests"`
	Status          string    `db:"status"`
	ContactEmail    string    `db:"contact_email"`
	IdempotencyKey  string    `db:"idempotency_key"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r *bookingRow) toEntity() *booking.Booking {
	return &booking.Booking{
		ID: r.ID, FlightID: r.FlightID, CustomerID: r.CustomerID,
		TotalPassengers: r.TotalPassengers, TotalAmount: r.TotalAmount,
		PaymentMethod: r.PaymentMethod, SpecialRequests: r.SpecialRequests,
		Status: booking.Status(r.Status), ContactEmail: r.ContactEmail,
		IdempotencyKey: r.IdempotencyKey,
		CreatedAt:      r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func toBookings(rows []bookingRow) []*booking.Booking {
	result := make([]*booking.Booking, len(rows))
	for i := range rows {
		result[i] = rows[i].toEntity()
	}
	return result
}

// BookingRepository は予約台帳のPostgreSQL実装
type BookingRepository struct{ db *sqlx.DB }

func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	sqlTx, err := UnwrapTx(tx)
	if err != nil {
		return transaction.Wrap("booking.Create", err)
	}
	query := `INSERT INTO bookings (flight_id, customer_id, total_passengers, total_amount, payment_method,
		special_requests, status, contact_email, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
	var key interface{}
	if b.IdempotencyKey != "" {
		key = b.IdempotencyKey
	}
	err = sqlTx.QueryRowContext(ctx, query,
		b.FlightID, b.CustomerID, b.TotalPassengers, b.TotalAmount, b.PaymentMethod,
		b.SpecialRequests, string(b.Status), b.ContactEmail, key, b.CreatedAt, b.UpdatedAt,
	).Scan(&b.ID)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return booking.ErrIdempotencyKeyAlreadyExists
		case isForeignKeyViolation(err), isCheckViolation(err), isInvalidID(err):
			return fmt.Errorf("%w: %v", booking.ErrInvalidRequest, err)
		}
		return transaction.Wrap("booking.Create", err)
	}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	var row bookingRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, transaction.Wrap("booking.GetByID", err)
	}
	return row.toEntity(), nil
}

func (r *BookingRepository) GetByIdempotencyKey(ctx context.Context, key string) (*booking.Booking, error) {
	var row bookingRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+bookingColumns+` FROM bookings WHERE idempotency_key = $1`, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, transaction.Wrap("booking.GetByIdempotencyKey", err)
	}
	return row.toEntity(), nil
}

// ListByCustomer は顧客の予約を新しい順に取得する
func (r *BookingRepository) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*booking.Booking, error) {
	var rows []bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &rows, query, customerID, limit, offset); err != nil {
		return nil, transaction.Wrap("booking.ListByCustomer", err)
	}
	return toBookings(rows), nil
}

// ListByFlight はフライトの予約を作成順に取得する
func (r *BookingRepository) ListByFlight(ctx context.Context, flightID string) ([]*booking.Booking, error) {
	var rows []bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE flight_id = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &rows, query, flightID); err != nil {
		if isInvalidID(err) {
			return []*booking.Booking{}, nil
		}
		return nil, transaction.Wrap("booking.ListByFlight", err)
	}
	return toBookings(rows), nil
}

// UpdateStatus は現在の状態が to への遷移元である場合のみ更新する
// 取得と判定の間に別のリクエストが状態を変えても二重遷移にならない
func (r *BookingRepository) UpdateStatus(ctx context.Context, tx transaction.Tx, id string, to booking.Status) (*booking.Booking, error) {
	sources := booking.SourcesOf(to)
	if len(sources) == 0 {
		return nil, booking.ErrInvalidTransition
	}
	from := make([]string, len(sources))
	for i, s := range sources {
		from[i] = string(s)
	}
	sqlTx, err := UnwrapTx(tx)
	if err != nil {
		return nil, transaction.Wrap("booking.UpdateStatus", err)
	}

	query := `UPDATE bookings SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
		RETURNING ` + bookingColumns
	var row bookingRow
	err = sqlTx.GetContext(ctx, &row, query, id, string(to), pq.Array(from))
	if err == nil {
		return row.toEntity(), nil
	}
	if isInvalidID(err) {
		return nil, booking.ErrBookingNotFound
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, transaction.Wrap("booking.UpdateStatus", err)
	}

	var status string
	if err := sqlTx.GetContext(ctx, &status, `SELECT status FROM bookings WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, transaction.Wrap("booking.UpdateStatus", err)
	}
	if booking.Status(status) == booking.StatusCancelled && to == booking.StatusCancelled {
		return nil, booking.ErrBookingAlreadyCancelled
	}
	return nil, booking.ErrInvalidTransition
}

var _ booking.Repository = (*BookingRepository)(nil)
