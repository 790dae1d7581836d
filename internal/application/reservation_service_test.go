package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alexxvives/JetChance-sub001/internal/domain/booking"
	"github.com/alexxvives/JetChance-sub001/internal/domain/caller"
	"github.com/alexxvives/JetChance-sub001/internal/domain/flight"
	"github.com/alexxvives/JetChance-sub001/internal/domain/outbox"
	"github.com/alexxvives/JetChance-sub001/internal/domain/transaction"
	redisinfra "github.com/alexxvives/JetChance-sub001/internal/infrastructure/redis"
	"github.com/alexxvives/JetChance-sub001/internal/pkg/metrics"
)

// === Test helper ===
type testDeps struct {
	txManager   *MockTxManager
	tx          *MockTx
	flightRepo  *MockFlightRepository
	bookingRepo *MockBookingRepository
	outboxRepo  *MockOutboxRepository
	lockManager *MockLockManager
	lock        *MockLock
	cache       *MockAvailabilityCache
	metrics     *metrics.Metrics
	service     *ReservationService
}

func newTestDeps(opts ...ReservationOption) *testDeps {
	d := &testDeps{
		txManager:   new(MockTxManager),
		tx:          new(MockTx),
		flightRepo:  new(MockFlightRepository),
		bookingRepo: new(MockBookingRepository),
		outboxRepo:  new(MockOutboxRepository),
		lockManager: new(MockLockManager),
		lock:        new(MockLock),
		cache:       new(MockAvailabilityCache),
		metrics:     metrics.NewWithRegistry(prometheus.NewRegistry()),
	}
	// Rollback は defer で必ず呼ばれる
	d.tx.On("Rollback").Return(nil).Maybe()

	opts = append([]ReservationOption{WithMetrics(d.metrics)}, opts...)
	d.service = NewReservationService(d.txManager, d.flightRepo, d.bookingRepo, d.outboxRepo, d.lockManager, d.cache, opts...)
	return d
}

var (
	customer = caller.Caller{CustomerID: "customer-1", Email: "tanaka@example.com", Role: caller.RoleCustomer}
	other    = caller.Caller{CustomerID: "customer-2", Email: "suzuki@example.com", Role: caller.RoleCustomer}
	operator = caller.Caller{CustomerID: "operator-1", Role: caller.RoleOperator}
	admin    = caller.Caller{CustomerID: "admin-1", Role: caller.RoleAdmin}
)

func activeFlight(seats int) *flight.Flight {
	departure := time.Now().Add(72 * time.Hour)
	return &flight.Flight{
		ID: "flight-1", OperatorID: "operator-1",
		Origin: "HND", Destination: "KIX",
		DepartureAt: departure, ArrivalAt: departure.Add(90 * time.Minute),
		TotalSeats: seats, AvailableSeats: seats,
		PricePerSeat: 100000, Status: flight.StatusActive,
	}
}

func eventOfType(eventType string) interface{} {
	return mock.MatchedBy(func(e *outbox.Event) bool {
		return e.EventType == eventType && e.AggregateID == "flight-1"
	})
}

func (d *testDeps) expectReserve(passengers int) {
	updated := activeFlight(6)
	updated.AvailableSeats -= passengers
	updated.Status = flight.DeriveStatus(updated.Status, updated.AvailableSeats, updated.TotalSeats)

	d.txManager.On("Begin", mock.Anything).Return(d.tx, nil)
	d.flightRepo.On("DecrementSeats", mock.Anything, d.tx, "flight-1", passengers).Return(updated, nil)
	d.bookingRepo.On("Create", mock.Anything, d.tx, mock.AnythingOfType("*booking.Booking")).
		Run(func(args mock.Arguments) {
			args.Get(2).(*booking.Booking).ID = "booking-1"
		}).Return(nil)
	d.outboxRepo.On("Create", mock.Anything, d.tx, eventOfType(outbox.EventBookingCreated)).Return(nil)
	d.tx.On("Commit").Return(nil)
	d.cache.On("Invalidate", mock.Anything, "flight-1").Return(nil)
}

// === CreateBooking ===

func TestReservationService_CreateBooking_Success(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()

	deps.flightRepo.On("GetByID", ctx, "flight-1").Return(activeFlight(6), nil)
	deps.expectReserve(2)

	result, err := deps.service.CreateBooking(ctx, customer, CreateBookingInput{
		FlightID:       "flight-1",
		PassengerCount: 2,
		PaymentMethod:  "card",
	})

	require.NoError(t, err)
	assert.Equal(t, "booking-1", result.ID)
	assert.Equal(t, "customer-1", result.CustomerID)
	assert.Equal(t, booking.StatusPending, result.Status)
	assert.Equal(t, int64(200000), result.TotalAmount)
	assert.Equal(t, "tanaka@example.com", result.ContactEmail)

	deps.txManager.AssertExpectations(t)
	deps.flightRepo.AssertExpectations(t)
	deps.bookingRepo.AssertExpectations(t)
	deps.outboxRepo.AssertExpectations(t)
	deps.tx.AssertExpectations(t)
	deps.cache.AssertExpectations(t)
	deps.lockManager.AssertNotCalled(t, "AcquireLockWithRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, float64(1), testutil.ToFloat64(deps.metrics.BookingsTotal.WithLabelValues("success")))
}

func TestReservationService_CreateBooking_KeepsGivenAmount(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()

	deps.flightRepo.On("GetByID", ctx, "flight-1").Return(activeFlight(6), nil)
	deps.expectReserve(1)

	result, err := deps.service.CreateBooking(ctx, customer, CreateBookingInput{
		FlightID:       "flight-1",
		PassengerCount: 1,
		TotalAmount:    80000,
		ContactEmail:   "office@example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(80000), result.TotalAmount)
	assert.Equal(t, "office@example.com", result.ContactEmail)
}

func TestReservationService_CreateBooking_InvalidRequest(t *testing.T) {
	tests := []struct {
		name    string
		input   CreateBookingInput
		wantErr error
	}{
		{"搭乗者数0", CreateBookingInput{FlightID: "flight-1", PassengerCount: 0}, booking.ErrInvalidPassengerCount},
		{"搭乗者数が負", CreateBookingInput{FlightID: "flight-1", PassengerCount: -1}, booking.ErrInvalidPassengerCount},
		{"フライトID未指定", CreateBookingInput{PassengerCount: 1}, booking.ErrFlightIDRequired},
		{"金額が負", CreateBookingInput{FlightID: "flight-1", PassengerCount: 1, TotalAmount: -100}, booking.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps()

			result, err := deps.service.CreateBooking(context.Background(), customer, tt.input)

			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, booking.ErrInvalidRequest)
			// ストアには一切アクセスしない
			deps.flightRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
			deps.txManager.AssertNotCalled(t, "Begin", mock.Anything)
			assert.Equal(t, float64(1), testutil.ToFloat64(deps.metrics.BookingsTotal.WithLabelValues("invalid")))
		})
	}
}

func TestReservationService_CreateBooking_Unauthenticated(t *testing.T) {
	deps := newTestDeps()

	result, err := deps.service.CreateBooking(context.Background(), caller.Caller{}, CreateBookingInput{FlightID: "flight-1", PassengerCount: 1})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, caller.ErrUnauthenticated)
}

func TestReservationService_CreateBooking_OperatorCannotBook(t *testing.T) {
	deps := newTestDeps()

	_, err := deps.service.CreateBooking(context.Background(), operator, CreateBookingInput{FlightID: "flight-1", PassengerCount: 1})

	assert.ErrorIs(t, err, caller.ErrForbidden)
}

func TestReservationService_CreateBooking_FlightNotFound(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()

	deps.flightRepo.On("GetByID", ctx, "missing").Return(nil, flight.ErrFlightNotFound)

	result, err := deps.service.CreateBooking(ctx, customer, CreateBookingInput{FlightID: "missing", PassengerCount: 1})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, flight.ErrFlightNotFound)
	deps.txManager.AssertNotCalled(t, "Begin", mock.Anything)
	assert.Equal(t, float64(1), testutil.ToFloat64(deps.metrics.BookingsTotal.WithLabelValues("not_found")))
}

func TestReservationService_CreateBooking_FlightNotBookable(t *testing.T) {
	for _, status := range []flight.Status{flight.StatusCancelled, flight.StatusCompleted, flight.StatusDraft, flight.StatusPendingApproval} {
		t.Run(string(status), func(t *testing.T) {
			deps := newTestDeps()
			ctx := context.Background()

			f := activeFlight(4)
			f.Status = status
			deps.flightRepo.On("GetByID", ctx, "flight-1").Return(f, nil)

			result, err := deps.service.CreateBooking(ctx, customer, CreateBookingInput{FlightID: "flight-1", PassengerCount: 1})

			assert.Nil(t, result)
			assert.ErrorIs(t, err, flight.ErrFlightNotBookable)
			deps.txManager.AssertNotCalled(t, "Begin", mock.Anything)
		})
	}
}

func TestReservationService_CreateBooking_InsufficientSeats(t *testing.T) {
	t.Run("事前チェックで空席不足", func(t *testing.T) {
		deps := newTestDeps()
		ctx := context.Background()

		f := activeFlight(6)
		f.AvailableSeats = 2
		deps.flightRepo.On("GetByID", ctx, "flight-1").Return(f, nil)

		_, err := deps.service.CreateBooking(ctx, customer, CreateBookingInput{FlightID: "flight-1", PassengerCount: 3})

		assert.ErrorIs(t, err, flight.ErrInsufficientSeats)
		deps.txManager.AssertNotCalled(t, "Begin", mock.Anything)
	})

	t.Run("事前チェック後に他の予約で埋まった", func(t *testing.T) {
		deps := newTestDeps()
		ctx := context.Background()

		deps.flightRepo.On("GetByID", ctx, "flight-1").Return(activeFlight(6), nil)
		deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
		deps.flightRepo.On("DecrementSeats", ctx, deps.tx, "flight-1", 3).Return(nil, flight.ErrInsufficientSeats)

		result, err := deps.service.CreateBooking(ctx, customer, CreateBookingInput{FlightID: "flight-1", PassengerCount: 3})

		assert.Nil(t, result)
		assert.ErrorIs(t, err, flight.ErrInsufficientSeats)
		deps.bookingRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		deps.tx.AssertCalled(t, "Rollback")
		deps.tx.AssertNotCalled(t, "Commit")
		assert.Equal(t, float64(1), testutil.ToFloat64(deps.metrics.BookingsTotal.WithLabelValues("insufficient_seats")))
	})
}

func TestReservationService_CreateBooking_InsertFailureRollsBack(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()

	deps.flightRepo.On("GetByID", ctx, "flight-1").Return(activeFlight(6), nil)
	deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
	deps.flightRepo.On("DecrementSeats", ctx, deps.tx, "flight-1", 2).Return(activeFlight(6), nil)
	deps.bookingRepo.On("Create", ctx, deps.tx, mock.AnythingOfType("*booking.Booking")).
		Return(transaction.Wrap("booking.Create", errors.New("connection reset by peer")))

	result, err := deps.service.CreateBooking(ctx, customer, CreateBookingInput{FlightID: "flight-1", PassengerCount: 2})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, transaction.ErrStorageFailure)
	deps.tx.AssertCalled(t, "Rollback")
	deps.tx.AssertNotCalled(t, "Commit")
	deps.outboxRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	deps.cache.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
	assert.Equal(t, float64(1), testutil.ToFloat64(deps.metrics.BookingsTotal.WithLabelValues("error")))
}

func TestReservationService_CreateBooking_BeginFailure(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()

	deps.flightRepo.On("GetByID", ctx, "flight-1").Return(activeFlight(6), nil)
	deps.txManager.On("Begin", ctx).Return(nil, transaction.Wrap("tx.Begin", errors.New("dial tcp: connection refused")))

	_, err := deps.service.CreateBooking(ctx, customer, CreateBookingInput{FlightID: "flight-1", PassengerCount: 1})

	assert.ErrorIs(t, err, transaction.ErrStorageFailure)
	deps.flightRepo.AssertNotCalled(t, "DecrementSeats", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReservationService_CreateBooking_IdempotencyHit(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()

	existing := &booking.Booking{
		ID: "existing-booking", FlightID: "flight-1", CustomerID: "customer-1",
		TotalPassengers: 2, IdempotencyKey: "order-001", Status: booking.StatusPending,
	}
	deps.bookingRepo.On("GetByIdempotencyKey", ctx, "order-001").Return(existing, nil)

	result, err := deps.service.CreateBooking(ctx, customer, CreateBookingInput{
		FlightID: "flight-1", PassengerCount: 2, IdempotencyKey: "order-001",
	})

	require.NoError(t, err)
	assert.Equal(t, "existing-booking", result.ID)
	deps.lockManager.AssertNotCalled(t, "AcquireLockWithRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	deps.txManager.AssertNotCalled(t, "Begin", mock.Anything)
}

func TestReservationService_CreateBooking_IdempotencyKeyOfAnotherCustomer(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()

	existing := &booking.Booking{ID: "b-9", FlightID: "flight-1", CustomerID: "customer-2", IdempotencyKey: "order-001"}
	deps.bookingRepo.On("GetByIdempotencyKey", ctx, "order-001").Return(existing, nil)

	result, err := deps.service.CreateBooking(ctx, customer, CreateBookingInput{
		FlightID: "flight-1", PassengerCount: 1, IdempotencyKey: "order-001",
	})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, booking.ErrIdempotencyKeyAlreadyExists)
}

func TestReservationService_CreateBooking_WithIdempotencyKey(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()

	deps.bookingRepo.On("GetByIdempotencyKey", ctx, "order-002").Return(nil, booking.ErrBookingNotFound)
	deps.lockManager.On("AcquireLockWithRetry", ctx, "booking:idempotency:order-002", 10*time.Second, 3, 100*time.Millisecond).
		Return(deps.lock, nil)
	deps.lock.On("Release", mock.Anything).Return(nil)
	deps.flightRepo.On("GetByID", ctx, "flight-1").Return(activeFlight(6), nil)
	deps.expectReserve(1)

	result, err := deps.service.CreateBooking(ctx, customer, CreateBookingInput{
		FlightID: "flight-1", PassengerCount: 1, IdempotencyKey: " order-002 ",
	})

	require.NoError(t, err)
	assert.Equal(t, "order-002", result.IdempotencyKey)
	deps.lockManager.AssertExpectations(t)
	deps.lock.AssertExpectations(t)
	// ロック取得後にもう一度確認する
	deps.bookingRepo.AssertNumberOfCalls(t, "GetByIdempotencyKey", 2)
}

func TestReservationService_CreateBooking_ReleasesLockAfterClientDisconnect(t *testing.T) {
	deps := newTestDeps()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps.bookingRepo.On("GetByIdempotencyKey", ctx, "order-006").Return(nil, booking.ErrBookingNotFound)
	deps.lockManager.On("AcquireLockWithRetry", ctx, "booking:idempotency:order-006", 10*time.Second, 3, 100*time.Millisecond).
		Return(deps.lock, nil)
	// 切断されたリクエストのコンテキストではなく有効なコンテキストで解放する
	deps.lock.On("Release", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil })).Return(nil)
	deps.flightRepo.On("GetByID", ctx, "flight-1").
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, flight.ErrFlightNotFound)

	result, err := deps.service.CreateBooking(ctx, customer, CreateBookingInput{
		FlightID: "flight-1", PassengerCount: 1, IdempotencyKey: "order-006",
	})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, flight.ErrFlightNotFound)
	require.Error(t, ctx.Err())
	deps.lock.AssertExpectations(t)
}

func TestReservationService_CreateBooking_LockBusy(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()

	deps.bookingRepo.On("GetByIdempotencyKey", ctx, "order-003").Return(nil, booking.ErrBookingNotFound)
	deps.lockManager.On("AcquireLockWithRetry", ctx, mock.AnythingOfType("string"), 10*time.Second, 3, 100*time.Millisecond).
		Return(nil, redisinfra.ErrLockNotAcquired)

	result, err := deps.service.CreateBooking(ctx, customer, CreateBookingInput{
		FlightID: "flight-1", PassengerCount: 1, IdempotencyKey: "order-003",
	})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrBookingInProgress)
	deps.flightRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestReservationService_CreateBooking_RedisDownFallsBackToDatabase(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()

	deps.bookingRepo.On("GetByIdempotencyKey", ctx, "order-004").Return(nil, booking.ErrBookingNotFound)
	deps.lockManager.On("AcquireLockWithRetry", ctx, mock.AnythingOfType("string"), 10*time.Second, 3, 100*time.Millisecond).
		Return(nil, errors.New("ロック取得に失敗: dial tcp: connection refused"))
	deps.flightRepo.On("GetByID", ctx, "flight-1").Return(activeFlight(6), nil)
	deps.expectReserve(1)

	result, err := deps.service.CreateBooking(ctx, customer, CreateBookingInput{
		FlightID: "flight-1", PassengerCount: 1, IdempotencyKey: "order-004",
	})

	require.NoError(t, err)
	assert.Equal(t, "booking-1", result.ID)
	deps.lock.AssertNotCalled(t, "Release", mock.Anything)
}

func TestReservationService_CreateBooking_DuplicateKeyRaceReturnsExisting(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()

	existing := &booking.Booking{ID: "winner", FlightID: "flight-1", CustomerID: "customer-1", IdempotencyKey: "order-005"}
	deps.bookingRepo.On("GetByIdempotencyKey", ctx, "order-005").Return(nil, booking.ErrBookingNotFound).Once()
	deps.bookingRepo.On("GetByIdempotencyKey", ctx, "order-005").Return(existing, nil).Once()
	deps.lockManager.On("AcquireLockWithRetry", ctx, mock.AnythingOfType("string"), 10*time.Second, 3, 100*time.Millisecond).
		Return(nil, errors.New("redis: connection pool timeout"))
	deps.flightRepo.On("GetByID", ctx, "flight-1").Return(activeFlight(6), nil)
	deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
	deps.flightRepo.On("DecrementSeats", ctx, deps.tx, "flight-1", 1).Return(activeFlight(6), nil)
	deps.bookingRepo.On("Create", ctx, deps.tx, mock.AnythingOfType("*booking.Booking")).Return(booking.ErrIdempotencyKeyAlreadyExists)

	result, err := deps.service.CreateBooking(ctx, customer, CreateBookingInput{
		FlightID: "flight-1", PassengerCount: 1, IdempotencyKey: "order-005",
	})

	require.NoError(t, err)
	assert.Equal(t, "winner", result.ID)
	deps.tx.AssertCalled(t, "Rollback")
	deps.tx.AssertNotCalled(t, "Commit")
}

// === ConfirmBooking ===

func TestReservationService_ConfirmBooking(t *testing.T) {
	t.Run("管理者が確定できる", func(t *testing.T) {
		deps := newTestDeps()
		ctx := context.Background()

		confirmed := &booking.Booking{ID: "booking-1", FlightID: "flight-1", CustomerID: "customer-1", Status: booking.StatusConfirmed}
		deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
		deps.bookingRepo.On("UpdateStatus", ctx, deps.tx, "booking-1", booking.StatusConfirmed).Return(confirmed, nil)
		deps.outboxRepo.On("Create", ctx, deps.tx, eventOfType(outbox.EventBookingConfirmed)).Return(nil)
		deps.tx.On("Commit").Return(nil)

		result, err := deps.service.ConfirmBooking(ctx, admin, "booking-1")

		require.NoError(t, err)
		assert.Equal(t, booking.StatusConfirmed, result.Status)
		deps.outboxRepo.AssertExpectations(t)
		deps.flightRepo.AssertNotCalled(t, "RestoreSeats", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("顧客は確定できない", func(t *testing.T) {
		deps := newTestDeps()

		_, err := deps.service.ConfirmBooking(context.Background(), customer, "booking-1")

		assert.ErrorIs(t, err, caller.ErrForbidden)
		deps.txManager.AssertNotCalled(t, "Begin", mock.Anything)
	})

	t.Run("キャンセル済みは確定できない", func(t *testing.T) {
		deps := newTestDeps()
		ctx := context.Background()

		deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
		deps.bookingRepo.On("UpdateStatus", ctx, deps.tx, "booking-1", booking.StatusConfirmed).Return(nil, booking.ErrInvalidTransition)

		_, err := deps.service.ConfirmBooking(ctx, admin, "booking-1")

		assert.ErrorIs(t, err, booking.ErrInvalidTransition)
		deps.tx.AssertNotCalled(t, "Commit")
	})
}

// === CancelBooking ===

func pendingBooking() *booking.Booking {
	return &booking.Booking{
		ID: "booking-1", FlightID: "flight-1", CustomerID: "customer-1",
		TotalPassengers: 3, TotalAmount: 300000, Status: booking.StatusPending,
	}
}

func TestReservationService_CancelBooking_RestoresSeats(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()

	cancelled := pendingBooking()
	cancelled.Status = booking.StatusCancelled

	deps.bookingRepo.On("GetByID", ctx, "booking-1").Return(pendingBooking(), nil)
	deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
	deps.bookingRepo.On("UpdateStatus", ctx, deps.tx, "booking-1", booking.StatusCancelled).Return(cancelled, nil)
	deps.flightRepo.On("RestoreSeats", ctx, deps.tx, "flight-1", 3).Return(activeFlight(6), nil)
	deps.outboxRepo.On("Create", ctx, deps.tx, eventOfType(outbox.EventBookingCancelled)).Return(nil)
	deps.tx.On("Commit").Return(nil)
	deps.cache.On("Invalidate", ctx, "flight-1").Return(nil)

	result, err := deps.service.CancelBooking(ctx, customer, "booking-1")

	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, result.Status)
	deps.flightRepo.AssertExpectations(t)
	deps.cache.AssertExpectations(t)
}

func TestReservationService_CancelBooking_WithoutRestore(t *testing.T) {
	deps := newTestDeps(WithRestoreSeatsOnCancel(false))
	ctx := context.Background()

	cancelled := pendingBooking()
	cancelled.Status = booking.StatusCancelled

	deps.bookingRepo.On("GetByID", ctx, "booking-1").Return(pendingBooking(), nil)
	deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
	deps.bookingRepo.On("UpdateStatus", ctx, deps.tx, "booking-1", booking.StatusCancelled).Return(cancelled, nil)
	deps.outboxRepo.On("Create", ctx, deps.tx, eventOfType(outbox.EventBookingCancelled)).Return(nil)
	deps.tx.On("Commit").Return(nil)

	_, err := deps.service.CancelBooking(ctx, admin, "booking-1")

	require.NoError(t, err)
	deps.flightRepo.AssertNotCalled(t, "RestoreSeats", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	deps.cache.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
}

func TestReservationService_CancelBooking_Errors(t *testing.T) {
	t.Run("他人の予約はキャンセルできない", func(t *testing.T) {
		deps := newTestDeps()
		ctx := context.Background()
		deps.bookingRepo.On("GetByID", ctx, "booking-1").Return(pendingBooking(), nil)

		_, err := deps.service.CancelBooking(ctx, other, "booking-1")

		assert.ErrorIs(t, err, caller.ErrForbidden)
		deps.txManager.AssertNotCalled(t, "Begin", mock.Anything)
	})

	t.Run("存在しない予約", func(t *testing.T) {
		deps := newTestDeps()
		ctx := context.Background()
		deps.bookingRepo.On("GetByID", ctx, "missing").Return(nil, booking.ErrBookingNotFound)

		_, err := deps.service.CancelBooking(ctx, customer, "missing")

		assert.ErrorIs(t, err, booking.ErrBookingNotFound)
	})

	t.Run("二重キャンセル", func(t *testing.T) {
		deps := newTestDeps()
		ctx := context.Background()
		deps.bookingRepo.On("GetByID", ctx, "booking-1").Return(pendingBooking(), nil)
		deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
		deps.bookingRepo.On("UpdateStatus", ctx, deps.tx, "booking-1", booking.StatusCancelled).Return(nil, booking.ErrBookingAlreadyCancelled)

		_, err := deps.service.CancelBooking(ctx, customer, "booking-1")

		assert.ErrorIs(t, err, booking.ErrBookingAlreadyCancelled)
		deps.flightRepo.AssertNotCalled(t, "RestoreSeats", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		deps.tx.AssertNotCalled(t, "Commit")
	})

	t.Run("座席の返却に失敗するとキャンセルも取り消される", func(t *testing.T) {
		deps := newTestDeps()
		ctx := context.Background()
		cancelled := pendingBooking()
		cancelled.Status = booking.StatusCancelled
		deps.bookingRepo.On("GetByID", ctx, "booking-1").Return(pendingBooking(), nil)
		deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
		deps.bookingRepo.On("UpdateStatus", ctx, deps.tx, "booking-1", booking.StatusCancelled).Return(cancelled, nil)
		deps.flightRepo.On("RestoreSeats", ctx, deps.tx, "flight-1", 3).Return(nil, flight.ErrSeatRestoreExceedsCapacity)

		_, err := deps.service.CancelBooking(ctx, customer, "booking-1")

		assert.ErrorIs(t, err, flight.ErrSeatRestoreExceedsCapacity)
		deps.tx.AssertCalled(t, "Rollback")
		deps.tx.AssertNotCalled(t, "Commit")
	})
}

// === 参照系 ===

func TestReservationService_GetBooking(t *testing.T) {
	deps := newTestDeps()
	ctx := context.Background()
	deps.bookingRepo.On("GetByID", ctx, "booking-1").Return(pendingBooking(), nil)

	result, err := deps.service.GetBooking(ctx, customer, "booking-1")
	require.NoError(t, err)
	assert.Equal(t, "booking-1", result.ID)

	_, err = deps.service.GetBooking(ctx, admin, "booking-1")
	require.NoError(t, err)

	_, err = deps.service.GetBooking(ctx, other, "booking-1")
	assert.ErrorIs(t, err, caller.ErrForbidden)
}

func TestReservationService_ListCustomerBookings(t *testing.T) {
	tests := []struct {
		name          string
		limit, offset int
		wantLimit     int
		wantOffset    int
	}{
		{"デフォルト件数", 0, 0, 20, 0},
		{"上限を超える件数", 500, 10, 100, 10},
		{"負のオフセット", 5, -3, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps()
			ctx := context.Background()
			expected := []*booking.Booking{pendingBooking()}
			deps.bookingRepo.On("ListByCustomer", ctx, "customer-1", tt.wantLimit, tt.wantOffset).Return(expected, nil)

			result, err := deps.service.ListCustomerBookings(ctx, customer, tt.limit, tt.offset)

			require.NoError(t, err)
			assert.Len(t, result, 1)
			deps.bookingRepo.AssertExpectations(t)
		})
	}
}

func TestReservationService_ListFlightBookings(t *testing.T) {
	t.Run("運航者本人", func(t *testing.T) {
		deps := newTestDeps()
		ctx := context.Background()
		deps.flightRepo.On("GetByID", ctx, "flight-1").Return(activeFlight(6), nil)
		deps.bookingRepo.On("ListByFlight", ctx, "flight-1").Return([]*booking.Booking{pendingBooking()}, nil)

		result, err := deps.service.ListFlightBookings(ctx, operator, "flight-1")

		require.NoError(t, err)
		assert.Len(t, result, 1)
	})

	t.Run("他の運航者", func(t *testing.T) {
		deps := newTestDeps()
		ctx := context.Background()
		deps.flightRepo.On("GetByID", ctx, "flight-1").Return(activeFlight(6), nil)

		_, err := deps.service.ListFlightBookings(ctx, caller.Caller{CustomerID: "operator-2", Role: caller.RoleOperator}, "flight-1")

		assert.ErrorIs(t, err, caller.ErrForbidden)
		deps.bookingRepo.AssertNotCalled(t, "ListByFlight", mock.Anything, mock.Anything)
	})

	t.Run("顧客は参照できない", func(t *testing.T) {
		deps := newTestDeps()

		_, err := deps.service.ListFlightBookings(context.Background(), customer, "flight-1")

		assert.ErrorIs(t, err, caller.ErrForbidden)
	})
}
