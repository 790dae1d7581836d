package handler

import (
	"context"

	"github.com/alexxvives/JetChance-sub001/internal/application"
	"github.com/alexxvives/JetChance-sub001/internal/domain/booking"
	"github.com/alexxvives/JetChance-sub001/internal/domain/caller"
	"github.com/alexxvives/JetChance-sub001/internal/domain/flight"
)

// FlightServiceInterface はフライトサービスのインターフェース
type FlightServiceInterface interface {
	CreateFlight(ctx context.Context, c caller.Caller, input application.CreateFlightInput) (*flight.Flight, error)
	GetFlight(ctx context.Context, id string) (*flight.Flight, error)
	SearchFlights(ctx context.Context, q flight.SearchQuery) ([]*flight.Flight, error)
	SubmitFlight(ctx context.Context, c caller.Caller, id string) (*flight.Flight, error)
	ApproveFlight(ctx context.Context, c caller.Caller, id string) (*flight.Flight, error)
	CancelFlight(ctx context.Context, c caller.Caller, id string) (*flight.Flight, error)
	CompleteFlight(ctx context.Context, c caller.Caller, id string) (*flight.Flight, error)
	AvailableSeats(ctx context.Context, id string) (int, error)
}

// ReservationServiceInterface は予約サービスのインターフェース
type ReservationServiceInterface interface {
	CreateBooking(ctx context.Context, c caller.Caller, input application.CreateBookingInput) (*booking.Booking, error)
	GetBooking(ctx context.Context, c caller.Caller, id string) (*booking.Booking, error)
	ListCustomerBookings(ctx context.Context, c caller.Caller, limit, offset int) ([]*booking.Booking, error)
	ListFlightBookings(ctx context.Context, c caller.Caller, flightID string) ([]*booking.Booking, error)
	ConfirmBooking(ctx context.Context, c caller.Caller, id string) (*booking.Booking, error)
	CancelBooking(ctx context.Context, c caller.Caller, id string) (*booking.Booking, error)
}

var (
	_ FlightServiceInterface      = (*application.FlightService)(nil)
	_ ReservationServiceInterface = (*application.ReservationService)(nil)
)
