package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/alexxvives/JetChance-sub001/internal/domain/caller"
	"github.com/alexxvives/JetChance-sub001/internal/domain/flight"
	redisinfra "github.com/alexxvives/JetChance-sub001/internal/infrastructure/redis"
	"github.com/alexxvives/JetChance-sub001/internal/pkg/logger"
)

const defaultAvailabilityCacheTTL = 5 * time.Second

// FlightService は運航者・管理者によるフライトの登録と状態管理を行う
// 空席数は変更しない（変更できるのは ReservationService のみ）
type FlightService struct {
	flightRepo flight.Repository
	cache      redisinfra.AvailabilityCacheInterface
	cacheTTL   time.Duration
}

// NewFlightService は FlightService を作成する。cache は nil でもよい
func NewFlightService(fr flight.Repository, cache redisinfra.AvailabilityCacheInterface, cacheTTL time.Duration) *FlightService {
	if cacheTTL <= 0 {
		cacheTTL = defaultAvailabilityCacheTTL
	}
	return &FlightService{flightRepo: fr, cache: cache, cacheTTL: cacheTTL}
}

type CreateFlightInput struct {
	OperatorID   string // 管理者が代理登録する場合のみ指定
	Origin       string
	Destination  string
	DepartureAt  time.Time
	ArrivalAt    time.Time
	AircraftType string
	TotalSeats   int
	PricePerSeat int64
	Draft        bool
}

func (s *FlightService) CreateFlight(ctx context.Context, c caller.Caller, input CreateFlightInput) (*flight.Flight, error) {
	if err := c.Require(caller.RoleOperator, caller.RoleAdmin); err != nil {
		return nil, err
	}
	operatorID := c.CustomerID
	if c.IsAdmin() && input.OperatorID != "" {
		operatorID = input.OperatorID
	}

	f := flight.NewFlight(operatorID, input.Origin, input.Destination, input.AircraftType,
		input.DepartureAt, input.ArrivalAt, input.TotalSeats, input.PricePerSeat)
	if input.Draft {
		f.Status = flight.StatusDraft
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := s.flightRepo.Create(ctx, f); err != nil {
		return nil, err
	}

	logger.Info("フライトを登録",
		logger.FlightID(f.ID),
		zap.String("operator_id", f.OperatorID),
		zap.String("route", f.Origin+"-"+f.Destination),
		zap.Int("total_seats", f.TotalSeats),
	)
	return f, nil
}

func (s *FlightService) GetFlight(ctx context.Context, id string) (*flight.Flight, error) {
	return s.flightRepo.GetByID(ctx, id)
}

func (s *FlightService) SearchFlights(ctx context.Context, q flight.SearchQuery) ([]*flight.Flight, error) {
	if q.Limit <= 0 {
		q.Limit = defaultListLimit
	}
	if q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return s.flightRepo.Search(ctx, q)
}

// SubmitFlight は下書きを承認待ちにする
func (s *FlightService) SubmitFlight(ctx context.Context, c caller.Caller, id string) (*flight.Flight, error) {
	return s.transition(ctx, c, id, flight.StatusPendingApproval)
}

// ApproveFlight は承認待ちのフライトを販売開始する（管理者のみ）
func (s *FlightService) ApproveFlight(ctx context.Context, c caller.Caller, id string) (*flight.Flight, error) {
	if err := c.Require(caller.RoleAdmin); err != nil {
		return nil, err
	}
	return s.transition(ctx, c, id, flight.StatusActive)
}

// CancelFlight はフライトを欠航にする。既存の予約はそのまま残る
func (s *FlightService) CancelFlight(ctx context.Context, c caller.Caller, id string) (*flight.Flight, error) {
	return s.transition(ctx, c, id, flight.StatusCancelled)
}

// CompleteFlight は販売中のフライトを運航済みにする
func (s *FlightService) CompleteFlight(ctx context.Context, c caller.Caller, id string) (*flight.Flight, error) {
	return s.transition(ctx, c, id, flight.StatusCompleted)
}

func (s *FlightService) transition(ctx context.Context, c caller.Caller, id string, to flight.Status) (*flight.Flight, error) {
	if err := c.Require(caller.RoleOperator, caller.RoleAdmin); err != nil {
		return nil, err
	}
	current, err := s.flightRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Owns(current.OperatorID) {
		return nil, caller.ErrForbidden
	}

	f, err := s.flightRepo.UpdateStatus(ctx, id, to)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)

	logger.Info("フライトの状態を変更",
		logger.FlightID(id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(f.Status)),
	)
	return f, nil
}

// AvailableSeats は表示用の空席数を返す
// キャッシュは短時間で失効し、予約可否の判定には使わない
func (s *FlightService) AvailableSeats(ctx context.Context, id string) (int, error) {
	if s.cache != nil {
		seats, err := s.cache.GetAvailableSeats(ctx, id)
		if err == nil {
			return seats, nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			logger.Warn("空席数キャッシュの取得に失敗", logger.FlightID(id), zap.Error(err))
		}
	}

	f, err := s.flightRepo.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.SetAvailableSeats(ctx, id, f.AvailableSeats, s.cacheTTL); err != nil {
			logger.Warn("空席数キャッシュの保存に失敗", logger.FlightID(id), zap.Error(err))
		}
	}
	return f.AvailableSeats, nil
}

func (s *FlightService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		logger.Warn("空席数キャッシュの無効化に失敗", logger.FlightID(id), zap.Error(err))
	}
}
