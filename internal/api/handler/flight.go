package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/alexxvives/JetChance-sub001/internal/api"
	"github.com/alexxvives/JetChance-sub001/internal/application"
	"github.com/alexxvives/JetChance-sub001/internal/domain/caller"
	"github.com/alexxvives/JetChance-sub001/internal/domain/flight"
)

type FlightHandler struct {
	service FlightServiceInterface
}

func NewFlightHandler(s FlightServiceInterface) *FlightHandler {
	return &FlightHandler{service: s}
}

type CreateFlightRequest struct {
	OperatorID   string    `json:"operator_id" example:"operator-123"`
	Origin       string    `json:"origin" validate:"required,iata" example:"HND"`
	Destination  string    `json:"destination" validate:"required,iata" example:"CTS"`
	DepartureAt  time.Time `json:"departure_at" validate:"required" example:"2026-12-01T08:30:00Z"`
	ArrivalAt    time.Time `json:"arrival_at" validate:"required,gtfield=DepartureAt" example:"2026-12-01T10:05:00Z"`
	AircraftType string    `json:"aircraft_type" validate:"required,max=100" example:"Phenom 300"`
	TotalSeats   int       `json:"total_seats" validate:"required,min=1,max=100" example:"6"`
	PricePerSeat int64     `json:"price_per_seat" validate:"min=0" example:"150000"`
	Draft        bool      `json:"draft"`
}

type FlightResponse struct {
	ID             string `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	OperatorID     string `json:"operator_id" example:"operator-123"`
	Origin         string `json:"origin" example:"HND"`
	Destination    string `json:"destination" example:"CTS"`
	DepartureAt    string `json:"departure_at"`
	ArrivalAt      string `json:"arrival_at"`
	AircraftType   string `json:"aircraft_type" example:"Phenom 300"`
	TotalSeats     int    `json:"total_seats" example:"6"`
	AvailableSeats int    `json:"available_seats" example:"4"`
	PricePerSeat   int64  `json:"price_per_seat" example:"150000"`
	Status         string `json:"status" example:"partially_booked"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type AvailabilityResponse struct {
	FlightID       string `json:"flight_id"`
	AvailableSeats int    `json:"available_seats"`
}

func toFlightResponse(f *flight.Flight) FlightResponse {
	return FlightResponse{
		ID: f.ID, OperatorID: f.OperatorID,
		Origin: f.Origin, Destination: f.Destination,
		DepartureAt:  f.DepartureAt.Format(time.RFC3339),
		ArrivalAt:    f.ArrivalAt.Format(time.RFC3339),
		AircraftType: f.AircraftType,
		TotalSeats:   f.TotalSeats, AvailableSeats: f.AvailableSeats,
		PricePerSeat: f.PricePerSeat, Status: string(f.Status),
		CreatedAt: f.CreatedAt.Format(time.RFC3339),
		UpdatedAt: f.UpdatedAt.Format(time.RFC3339),
	}
}

// Create godoc
// @Summary フライトを登録
// @Description 空席便を登録します（承認待ち、draft=true の場合は下書き）
// @Tags flights
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateFlightRequest true "フライト情報"
// @Success 201 {object} FlightResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 403 {object} api.ErrorResponse
// @Router /flights [post]
func (h *FlightHandler) Create(c echo.Context) error {
	var req CreateFlightRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	f, err := h.service.CreateFlight(c.Request().Context(), callerOf(c), application.CreateFlightInput{
		OperatorID: req.OperatorID, Origin: req.Origin, Destination: req.Destination,
		DepartureAt: req.DepartureAt, ArrivalAt: req.ArrivalAt, AircraftType: req.AircraftType,
		TotalSeats: req.TotalSeats, PricePerSeat: req.PricePerSeat, Draft: req.Draft,
	})
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toFlightResponse(f))
}

// GetByID godoc
// @Summary フライトを取得
// @Tags flights
// @Produce json
// @Param id path string true "フライトID"
// @Success 200 {object} FlightResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /flights/{id} [get]
func (h *FlightHandler) GetByID(c echo.Context) error {
	f, err := h.service.GetFlight(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toFlightResponse(f))
}

// Search godoc
// @Summary フライトを検索
// @Description 出発地・到着地・出発日・必要座席数で検索します（既定では予約受付中のみ）
// @Tags flights
// @Produce json
// @Param origin query string false "出発地" example(HND)
// @Param destination query string false "到着地" example(CTS)
// @Param date query string false "出発日（YYYY-MM-DD）"
// @Param min_seats query int false "必要座席数"
// @Param all query bool false "受付外のフライトも含める"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} FlightResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /flights [get]
func (h *FlightHandler) Search(c echo.Context) error {
	var (
		q   flight.SearchQuery
		all bool
	)
	err := echo.QueryParamsBinder(c).
		String("origin", &q.Origin).
		String("destination", &q.Destination).
		Time("date", &q.DepartureOn, "2006-01-02").
		Int("min_seats", &q.MinSeats).
		Bool("all", &all).
		Int("limit", &q.Limit).
		Int("offset", &q.Offset).
		BindError()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "検索条件が不正です")
	}
	q.BookableOnly = !all

	flights, err := h.service.SearchFlights(c.Request().Context(), q)
	if err != nil {
		return api.ToHTTPError(err)
	}
	resp := make([]FlightResponse, len(flights))
	for i, f := range flights {
		resp[i] = toFlightResponse(f)
	}
	return c.JSON(http.StatusOK, resp)
}

// Availability godoc
// @Summary 空席数を取得
// @Description 表示用の空席数を返します（数秒間キャッシュされます）
// @Tags flights
// @Produce json
// @Param id path string true "フライトID"
// @Success 200 {object} AvailabilityResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /flights/{id}/availability [get]
func (h *FlightHandler) Availability(c echo.Context) error {
	id := c.Param("id")
	seats, err := h.service.AvailableSeats(c.Request().Context(), id)
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, AvailabilityResponse{FlightID: id, AvailableSeats: seats})
}

// Submit godoc
// @Summary 下書きを提出
// @Tags flights
// @Produce json
// @Security BearerAuth
// @Param id path string true "フライトID"
// @Success 200 {object} FlightResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /flights/{id}/submit [post]
func (h *FlightHandler) Submit(c echo.Context) error {
	return h.transition(c, h.service.SubmitFlight)
}

// Approve godoc
// @Summary フライトを承認（管理者）
// @Tags flights
// @Produce json
// @Security BearerAuth
// @Param id path string true "フライトID"
// @Success 200 {object} FlightResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /flights/{id}/approve [post]
func (h *FlightHandler) Approve(c echo.Context) error {
	return h.transition(c, h.service.ApproveFlight)
}

// Cancel godoc
// @Summary フライトを欠航にする
// @Tags flights
// @Produce json
// @Security BearerAuth
// @Param id path string true "フライトID"
// @Success 200 {object} FlightResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /flights/{id}/cancel [post]
func (h *FlightHandler) Cancel(c echo.Context) error {
	return h.transition(c, h.service.CancelFlight)
}

// Complete godoc
// @Summary フライトを運航済みにする
// @Tags flights
// @Produce json
// @Security BearerAuth
// @Param id path string true "フライトID"
// @Success 200 {object} FlightResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /flights/{id}/complete [post]
func (h *FlightHandler) Complete(c echo.Context) error {
	return h.transition(c, h.service.CompleteFlight)
}

type flightTransition func(ctx context.Context, c caller.Caller, id string) (*flight.Flight, error)

func (h *FlightHandler) transition(c echo.Context, fn flightTransition) error {
	f, err := fn(c.Request().Context(), callerOf(c), c.Param("id"))
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toFlightResponse(f))
}
