package application

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/alexxvives/JetChance-sub001/internal/domain/booking"
	"github.com/alexxvives/JetChance-sub001/internal/domain/flight"
	"github.com/alexxvives/JetChance-sub001/internal/domain/outbox"
	"github.com/alexxvives/JetChance-sub001/internal/domain/transaction"
	redisinfra "github.com/alexxvives/JetChance-sub001/internal/infrastructure/redis"
)

// === Mock implementations ===

// MockTxManager implements transaction.Manager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(transaction.Tx), args.Error(1)
}

// MockTx implements transaction.Tx
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTx) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// MockFlightRepository implements flight.Repository
type MockFlightRepository struct {
	mock.Mock
}

func (m *MockFlightRepository) Create(ctx context.Context, f *flight.Flight) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *MockFlightRepository) GetByID(ctx context.Context, id string) (*flight.Flight, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*flight.Flight), args.Error(1)
}

func (m *MockFlightRepository) Search(ctx context.Context, q flight.SearchQuery) ([]*flight.Flight, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*flight.Flight), args.Error(1)
}

func (m *MockFlightRepository) UpdateStatus(ctx context.Context, id string, to flight.Status) (*flight.Flight, error) {
	args := m.Called(ctx, id, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*flight.Flight), args.Error(1)
}

func (m *MockFlightRepository) DecrementSeats(ctx context.Context, tx transaction.Tx, id string, count int) (*flight.Flight, error) {
	args := m.Called(ctx, tx, id, count)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*flight.Flight), args.Error(1)
}

func (m *MockFlightRepository) RestoreSeats(ctx context.Context, tx transaction.Tx, id string, count int) (*flight.Flight, error) {
	args := m.Called(ctx, tx, id, count)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*flight.Flight), args.Error(1)
}

// MockBookingRepository implements booking.Repository
type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	args := m.Called(ctx, tx, b)
	return args.Error(0)
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingRepository) GetByIdempotencyKey(ctx context.Context, key string) (*booking.Booking, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*booking.Booking, error) {
	args := m.Called(ctx, customerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*booking.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListByFlight(ctx context.Context, flightID string) ([]*booking.Booking, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*booking.Booking), args.Error(1)
}

func (m *MockBookingRepository) UpdateStatus(ctx context.Context, tx transaction.Tx, id string, to booking.Status) (*booking.Booking, error) {
	args := m.Called(ctx, tx, id, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

// MockOutboxRepository implements outbox.Repository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, tx transaction.Tx, e *outbox.Event) error {
	args := m.Called(ctx, tx, e)
	return args.Error(0)
}

func (m *MockOutboxRepository) ClaimBatch(ctx context.Context, limit int, reclaimAfter time.Duration) ([]*outbox.Event, error) {
	args := m.Called(ctx, limit, reclaimAfter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Event), args.Error(1)
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

// MockLockManager implements redisinfra.LockManagerInterface
type MockLockManager struct {
	mock.Mock
}

func (m *MockLockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (redisinfra.Lock, error) {
	args := m.Called(ctx, key, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(redisinfra.Lock), args.Error(1)
}

func (m *MockLockManager) AcquireLockWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryInterval time.Duration) (redisinfra.Lock, error) {
	args := m.Called(ctx, key, ttl, maxRetries, retryInterval)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(redisinfra.Lock), args.Error(1)
}

// MockLock implements redisinfra.Lock
type MockLock struct {
	mock.Mock
}

func (m *MockLock) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockAvailabilityCache implements redisinfra.AvailabilityCacheInterface
type MockAvailabilityCache struct {
	mock.Mock
}

func (m *MockAvailabilityCache) GetAvailableSeats(ctx context.Context, flightID string) (int, error) {
	args := m.Called(ctx, flightID)
	return args.Int(0), args.Error(1)
}

func (m *MockAvailabilityCache) SetAvailableSeats(ctx context.Context, flightID string, seats int, ttl time.Duration) error {
	args := m.Called(ctx, flightID, seats, ttl)
	return args.Error(0)
}

func (m *MockAvailabilityCache) Invalidate(ctx context.Context, flightID string) error {
	args := m.Called(ctx, flightID)
	return args.Error(0)
}
