package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alexxvives/JetChance-sub001/internal/domain/booking"
	"github.com/alexxvives/JetChance-sub001/internal/domain/transaction"
)

// BookingRepository は Store 上の予約台帳
type BookingRepository struct {
	store *Store
}

// Bookings は予約台帳を返す
func (s *Store) Bookings() *BookingRepository {
	return &BookingRepository{store: s}
}

func cloneBooking(b *booking.Booking) *booking.Booking {
	c := *b
	return &c
}

func (r *BookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	s := r.store
	t, err := s.txOf("booking.Create", tx)
	if err != nil {
		return err
	}
	if err := s.fault("booking.Create"); err != nil {
		return err
	}
	if _, ok := s.flights[b.FlightID]; !ok {
		return fmt.Errorf("%w: フライト %s が存在しません", booking.ErrInvalidRequest, b.FlightID)
	}
	if b.IdempotencyKey != "" {
		if _, exists := s.idempotencyIdx[b.IdempotencyKey]; exists {
			return booking.ErrIdempotencyKeyAlreadyExists
		}
	}

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	s.bookings[b.ID] = cloneBooking(b)
	s.bookingOrder = append(s.bookingOrder, b.ID)
	if b.IdempotencyKey != "" {
		s.idempotencyIdx[b.IdempotencyKey] = b.ID
	}

	id, key := b.ID, b.IdempotencyKey
	t.onRollback(func() {
		delete(s.bookings, id)
		s.bookingOrder = s.bookingOrder[:len(s.bookingOrder)-1]
		if key != "" {
			delete(s.idempotencyIdx, key)
		}
	})
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("booking.GetByID"); err != nil {
		return nil, err
	}
	b, ok := s.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return cloneBooking(b), nil
}

func (r *BookingRepository) GetByIdempotencyKey(ctx context.Context, key string) (*booking.Booking, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idempotencyIdx[key]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return cloneBooking(s.bookings[id]), nil
}

// ListByCustomer は顧客の予約を新しい順に取得する
func (r *BookingRepository) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*booking.Booking, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*booking.Booking
	for i := len(s.bookingOrder) - 1; i >= 0; i-- {
		b := s.bookings[s.bookingOrder[i]]
		if b.CustomerID == customerID {
			matched = append(matched, cloneBooking(b))
		}
	}
	if offset >= len(matched) {
		return []*booking.Booking{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// ListByFlight はフライトの予約を作成順に取得する
func (r *BookingRepository) ListByFlight(ctx context.Context, flightID string) ([]*booking.Booking, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []*booking.Booking{}
	for _, id := range s.bookingOrder {
		if b := s.bookings[id]; b.FlightID == flightID {
			result = append(result, cloneBooking(b))
		}
	}
	return result, nil
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, tx transaction.Tx, id string, to booking.Status) (*booking.Booking, error) {
	s := r.store
	t, err := s.txOf("booking.UpdateStatus", tx)
	if err != nil {
		return nil, err
	}
	if err := s.fault("booking.UpdateStatus"); err != nil {
		return nil, err
	}
	b, ok := s.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	before := *b
	if to == booking.StatusCancelled {
		err = b.Cancel()
	} else {
		err = b.TransitionTo(to)
	}
	if err != nil {
		return nil, err
	}
	b.UpdatedAt = time.Now()
	t.onRollback(func() { *b = before })
	return cloneBooking(b), nil
}

var _ booking.Repository = (*BookingRepository)(nil)
