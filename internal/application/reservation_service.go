package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alexxvives/JetChance-sub001/internal/domain/booking"
	"github.com/alexxvives/JetChance-sub001/internal/domain/caller"
	"github.com/alexxvives/JetChance-sub001/internal/domain/flight"
	"github.com/alexxvives/JetChance-sub001/internal/domain/outbox"
	"github.com/alexxvives/JetChance-sub001/internal/domain/transaction"
	redisinfra "github.com/alexxvives/JetChance-sub001/internal/infrastructure/redis"
	"github.com/alexxvives/JetChance-sub001/internal/pkg/logger"
	"github.com/alexxvives/JetChance-sub001/internal/pkg/metrics"
)

// ErrBookingInProgress は同じ冪等性キーの予約が別のリクエストで処理中であることを表す
var ErrBookingInProgress = errors.New("同じ冪等性キーの予約が処理中です")

const (
	defaultIdempotencyLockTTL = 10 * time.Second
	lockMaxRetries            = 3
	lockRetryInterval         = 100 * time.Millisecond
	lockReleaseTimeout        = 2 * time.Second

	defaultListLimit = 20
	maxListLimit     = 100
)

// ReservationService は空席の確保と予約の作成を1つのトランザクションで行う
type ReservationService struct {
	txManager   transaction.Manager
	flightRepo  flight.Repository
	bookingRepo booking.Repository
	outboxRepo  outbox.Repository
	lockManager redisinfra.LockManagerInterface
	cache       redisinfra.AvailabilityCacheInterface
	metrics     *metrics.Metrics

	restoreSeatsOnCancel bool
	lockTTL              time.Duration
}

// ReservationOption は ReservationService の設定を変更する
type ReservationOption func(*ReservationService)

// WithRestoreSeatsOnCancel はキャンセル時に座席を在庫へ戻すかを設定する
func WithRestoreSeatsOnCancel(enabled bool) ReservationOption {
	return func(s *ReservationService) { s.restoreSeatsOnCancel = enabled }
}

// WithIdempotencyLockTTL は冪等性キーのロック有効期限を設定する
func WithIdempotencyLockTTL(ttl time.Duration) ReservationOption {
	return func(s *ReservationService) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithMetrics は予約結果を記録するメトリクスを設定する
func WithMetrics(m *metrics.Metrics) ReservationOption {
	return func(s *ReservationService) { s.metrics = m }
}

// NewReservationService は ReservationService を作成する
// lockManager と cache は nil でもよい（Redis 無効時）
func NewReservationService(
	txm transaction.Manager,
	fr flight.Repository,
	br booking.Repository,
	or outbox.Repository,
	lm redisinfra.LockManagerInterface,
	cache redisinfra.AvailabilityCacheInterface,
	opts ...ReservationOption,
) *ReservationService {
	s := &ReservationService{
		txManager:            txm,
		flightRepo:           fr,
		bookingRepo:          br,
		outboxRepo:           or,
		lockManager:          lm,
		cache:                cache,
		restoreSeatsOnCancel: true,
		lockTTL:              defaultIdempotencyLockTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBookingInput は予約リクエスト
type CreateBookingInput struct {
	FlightID        string
	PassengerCount  int
	TotalAmount     int64 // 0 の場合は座席単価 × 搭乗者数
	PaymentMethod   string
	SpecialRequests string
	ContactEmail    string // 空の場合は呼び出し元のメールアドレス
	IdempotencyKey  string
}

// CreateBooking は空席を確保して予約を作成する
// 空席の減算・予約の作成・イベントの記録はすべて同じトランザクションで行い、いずれかが失敗すれば何も残らない
func (s *ReservationService) CreateBooking(ctx context.Context, c caller.Caller, input CreateBookingInput) (*booking.Booking, error) {
	if err := c.Require(caller.RoleCustomer, caller.RoleAdmin); err != nil {
		return nil, err
	}

	email := input.ContactEmail
	if strings.TrimSpace(email) == "" {
		email = c.Email
	}
	b := booking.NewBooking(input.FlightID, c.CustomerID, input.PassengerCount, input.TotalAmount, input.PaymentMethod, email)
	b.SpecialRequests = input.SpecialRequests
	b.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	if err := b.Validate(); err != nil {
		s.recordOutcome(err)
		return nil, err
	}

	log := logger.With(
		logger.FlightID(b.FlightID),
		logger.CustomerID(b.CustomerID),
		logger.PassengerCount(b.TotalPassengers),
	)

	if b.IdempotencyKey != "" {
		existing, err := s.findByIdempotencyKey(ctx, b)
		if err != nil || existing != nil {
			return existing, err
		}

		lock, err := s.acquireIdempotencyLock(ctx, b.IdempotencyKey)
		if err != nil {
			if errors.Is(err, redisinfra.ErrLockNotAcquired) {
				return nil, ErrBookingInProgress
			}
			// Redis 障害時は一意制約に任せて続行する
			log.Warn("冪等性キーのロック取得に失敗", zap.Error(err))
		}
		if lock != nil {
			defer func() {
				// クライアント切断後も解放できるようリクエストのキャンセルを引き継がない
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
				defer cancel()
				if err := lock.Release(releaseCtx); err != nil {
					log.Warn("冪等性キーのロック解放に失敗", zap.Error(err))
				}
			}()

			// ロック待ちの間に別のリクエストが作成した場合
			existing, err := s.findByIdempotencyKey(ctx, b)
			if err != nil || existing != nil {
				return existing, err
			}
		}
	}

	// 事前チェック（確定的な判定は DecrementSeats が行う）
	f, err := s.flightRepo.GetByID(ctx, b.FlightID)
	if err != nil {
		s.recordOutcome(err)
		return nil, err
	}
	if err := f.CheckAvailability(b.TotalPassengers); err != nil {
		s.recordOutcome(err)
		return nil, err
	}
	if b.TotalAmount == 0 {
		b.TotalAmount = f.PricePerSeat * int64(b.TotalPassengers)
	}

	updated, err := s.reserve(ctx, b)
	if err != nil {
		if errors.Is(err, booking.ErrIdempotencyKeyAlreadyExists) {
			if existing, findErr := s.findByIdempotencyKey(ctx, b); findErr != nil || existing != nil {
				return existing, findErr
			}
		}
		s.recordOutcome(err)
		log.Info("予約に失敗", zap.Error(err))
		return nil, err
	}

	s.invalidateAvailability(ctx, b.FlightID)
	s.recordOutcome(nil)
	log.Info("予約を作成",
		logger.BookingID(b.ID),
		zap.Int("available_seats", updated.AvailableSeats),
		zap.String("flight_status", string(updated.Status)),
	)
	return b, nil
}

// reserve は空席の減算と予約の作成を1つのトランザクションで行う
func (s *ReservationService) reserve(ctx context.Context, b *booking.Booking) (*flight.Flight, error) {
	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	start := time.Now()
	updated, err := s.flightRepo.DecrementSeats(ctx, tx, b.FlightID, b.TotalPassengers)
	s.observeSeatOperation("decrement", start, err)
	if err != nil {
		return nil, err
	}
	if err := s.bookingRepo.Create(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := s.recordEvent(ctx, tx, b, outbox.EventBookingCreated); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

// findByIdempotencyKey は同じ顧客の既存予約を返す。存在しない場合は nil, nil
func (s *ReservationService) findByIdempotencyKey(ctx context.Context, b *booking.Booking) (*booking.Booking, error) {
	existing, err := s.bookingRepo.GetByIdempotencyKey(ctx, b.IdempotencyKey)
	if err != nil {
		if errors.Is(err, booking.ErrBookingNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("冪等性チェックに失敗: %w", err)
	}
	if existing.CustomerID != b.CustomerID || existing.FlightID != b.FlightID {
		return nil, booking.ErrIdempotencyKeyAlreadyExists
	}
	return existing, nil
}

func (s *ReservationService) acquireIdempotencyLock(ctx context.Context, key string) (redisinfra.Lock, error) {
	if s.lockManager == nil {
		return nil, nil
	}
	start := time.Now()
	lock, err := s.lockManager.AcquireLockWithRetry(ctx, "booking:idempotency:"+key, s.lockTTL, lockMaxRetries, lockRetryInterval)
	if s.metrics != nil {
		s.metrics.DistributedLockDuration.WithLabelValues("acquire", statusLabel(err)).Observe(time.Since(start).Seconds())
	}
	return lock, err
}

// ConfirmBooking は決済完了の通知を受けて予約を確定する
func (s *ReservationService) ConfirmBooking(ctx context.Context, c caller.Caller, id string) (*booking.Booking, error) {
	if err := c.Require(caller.RoleAdmin); err != nil {
		return nil, err
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	b, err := s.bookingRepo.UpdateStatus(ctx, tx, id, booking.StatusConfirmed)
	if err != nil {
		return nil, err
	}
	if err := s.recordEvent(ctx, tx, b, outbox.EventBookingConfirmed); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	logger.Info("予約を確定", logger.BookingID(b.ID), logger.FlightID(b.FlightID))
	return b, nil
}

// CancelBooking は予約をキャンセルし、設定に応じて座席を同じトランザクションで在庫へ戻す
func (s *ReservationService) CancelBooking(ctx context.Context, c caller.Caller, id string) (*booking.Booking, error) {
	current, err := s.bookingRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Owns(current.CustomerID) {
		return nil, caller.ErrForbidden
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	b, err := s.bookingRepo.UpdateStatus(ctx, tx, id, booking.StatusCancelled)
	if err != nil {
		return nil, err
	}
	if s.restoreSeatsOnCancel {
		start := time.Now()
		_, err := s.flightRepo.RestoreSeats(ctx, tx, b.FlightID, b.TotalPassengers)
		s.observeSeatOperation("restore", start, err)
		if err != nil {
			return nil, err
		}
	}
	if err := s.recordEvent(ctx, tx, b, outbox.EventBookingCancelled); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if s.restoreSeatsOnCancel {
		s.invalidateAvailability(ctx, b.FlightID)
	}
	logger.Info("予約をキャンセル",
		logger.BookingID(b.ID),
		logger.FlightID(b.FlightID),
		logger.CustomerID(c.CustomerID),
		zap.Bool("seats_restored", s.restoreSeatsOnCancel),
	)
	return b, nil
}

// GetBooking は予約を取得する（本人または管理者のみ）
func (s *ReservationService) GetBooking(ctx context.Context, c caller.Caller, id string) (*booking.Booking, error) {
	b, err := s.bookingRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Owns(b.CustomerID) {
		return nil, caller.ErrForbidden
	}
	return b, nil
}

// ListCustomerBookings は呼び出し元の予約一覧を新しい順に取得する
func (s *ReservationService) ListCustomerBookings(ctx context.Context, c caller.Caller, limit, offset int) ([]*booking.Booking, error) {
	if c.CustomerID == "" {
		return nil, caller.ErrUnauthenticated
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookingRepo.ListByCustomer(ctx, c.CustomerID, limit, offset)
}

// ListFlightBookings はフライトの予約一覧を取得する（運航者本人または管理者のみ）
func (s *ReservationService) ListFlightBookings(ctx context.Context, c caller.Caller, flightID string) ([]*booking.Booking, error) {
	if err := c.Require(caller.RoleOperator, caller.RoleAdmin); err != nil {
		return nil, err
	}
	f, err := s.flightRepo.GetByID(ctx, flightID)
	if err != nil {
		return nil, err
	}
	if !c.Owns(f.OperatorID) {
		return nil, caller.ErrForbidden
	}
	return s.bookingRepo.ListByFlight(ctx, flightID)
}

func (s *ReservationService) recordEvent(ctx context.Context, tx transaction.Tx, b *booking.Booking, eventType string) error {
	if s.outboxRepo == nil {
		return nil
	}
	e, err := outbox.NewEvent(b.FlightID, eventType, outbox.BookingPayload{
		BookingID:       b.ID,
		FlightID:        b.FlightID,
		CustomerID:      b.CustomerID,
		TotalPassengers: b.TotalPassengers,
		TotalAmount:     b.TotalAmount,
		Status:          string(b.Status),
		OccurredAt:      time.Now(),
	})
	if err != nil {
		return fmt.Errorf("イベントの作成に失敗: %w", err)
	}
	return s.outboxRepo.Create(ctx, tx, e)
}

// invalidateAvailability は表示用の空席数キャッシュを破棄する。失敗しても予約結果には影響しない
func (s *ReservationService) invalidateAvailability(ctx context.Context, flightID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, flightID); err != nil {
		logger.Warn("空席数キャッシュの無効化に失敗", logger.FlightID(flightID), zap.Error(err))
	}
}

func (s *ReservationService) observeSeatOperation(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.SeatOperationDuration.WithLabelValues(op, statusLabel(err)).Observe(time.Since(start).Seconds())
}

func (s *ReservationService) recordOutcome(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.BookingsTotal.WithLabelValues(outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, flight.ErrInsufficientSeats):
		return "insufficient_seats"
	case errors.Is(err, flight.ErrFlightNotBookable):
		return "not_bookable"
	case errors.Is(err, flight.ErrFlightNotFound):
		return "not_found"
	case errors.Is(err, booking.ErrInvalidRequest), errors.Is(err, flight.ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}
