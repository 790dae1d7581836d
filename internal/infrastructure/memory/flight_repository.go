package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alexxvives/JetChance-sub001/internal/domain/flight"
	"github.com/alexxvives/JetChance-sub001/internal/domain/transaction"
)

// FlightRepository は Store 上のフライト在庫ストア
type FlightRepository struct {
	store *Store
}

// Flights はフライト在庫ストアを返す
func (s *Store) Flights() *FlightRepository {
	return &FlightRepository{store: s}
}

func cloneFlight(f *flight.Flight) *flight.Flight {
	c := *f
	return &c
}

func (r *FlightRepository) Create(ctx context.Context, f *flight.Flight) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("flight.Create"); err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	s.flights[f.ID] = cloneFlight(f)
	return nil
}

func (r *FlightRepository) GetByID(ctx context.Context, id string) (*flight.Flight, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("flight.GetByID"); err != nil {
		return nil, err
	}
	f, ok := s.flights[id]
	if !ok {
		return nil, flight.ErrFlightNotFound
	}
	return cloneFlight(f), nil
}

func (r *FlightRepository) Search(ctx context.Context, q flight.SearchQuery) ([]*flight.Flight, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("flight.Search"); err != nil {
		return nil, err
	}

	var result []*flight.Flight
	for _, f := range s.flights {
		if q.Origin != "" && f.Origin != strings.ToUpper(q.Origin) {
			continue
		}
		if q.Destination != "" && f.Destination != strings.ToUpper(q.Destination) {
			continue
		}
		if !q.DepartureOn.IsZero() && !sameDay(f.DepartureAt, q.DepartureOn) {
			continue
		}
		if q.MinSeats > 0 && f.AvailableSeats < q.MinSeats {
			continue
		}
		if q.BookableOnly && !f.IsBookable() {
			continue
		}
		result = append(result, cloneFlight(f))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DepartureAt.Before(result[j].DepartureAt)
	})

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if q.Offset >= len(result) {
		return []*flight.Flight{}, nil
	}
	result = result[q.Offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func sameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// UpdateStatus は運航者・管理者による状態遷移を行う（座席数は変更しない）
func (r *FlightRepository) UpdateStatus(ctx context.Context, id string, to flight.Status) (*flight.Flight, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("flight.UpdateStatus"); err != nil {
		return nil, err
	}
	f, ok := s.flights[id]
	if !ok {
		return nil, flight.ErrFlightNotFound
	}
	if err := f.TransitionTo(to); err != nil {
		return nil, err
	}
	return cloneFlight(f), nil
}

// DecrementSeats は検査と減算をトランザクションのロック内で行う
func (r *FlightRepository) DecrementSeats(ctx context.Context, tx transaction.Tx, id string, count int) (*flight.Flight, error) {
	return r.adjust(tx, "flight.DecrementSeats", id, func(f *flight.Flight) error {
		return f.Decrement(count)
	})
}

// RestoreSeats は総座席数を超えない場合のみ空席数を戻す
func (r *FlightRepository) RestoreSeats(ctx context.Context, tx transaction.Tx, id string, count int) (*flight.Flight, error) {
	return r.adjust(tx, "flight.RestoreSeats", id, func(f *flight.Flight) error {
		return f.Restore(count)
	})
}

func (r *FlightRepository) adjust(tx transaction.Tx, op, id string, apply func(f *flight.Flight) error) (*flight.Flight, error) {
	s := r.store
	t, err := s.txOf(op, tx)
	if err != nil {
		return nil, err
	}
	if err := s.fault(op); err != nil {
		return nil, err
	}
	f, ok := s.flights[id]
	if !ok {
		return nil, flight.ErrFlightNotFound
	}
	before := *f
	if err := apply(f); err != nil {
		return nil, err
	}
	t.onRollback(func() { *f = before })
	return cloneFlight(f), nil
}

var _ flight.Repository = (*FlightRepository)(nil)
