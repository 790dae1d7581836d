package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/alexxvives/JetChance-sub001/internal/api"
	"github.com/alexxvives/JetChance-sub001/internal/api/middleware"
	"github.com/alexxvives/JetChance-sub001/internal/application"
	"github.com/alexxvives/JetChance-sub001/internal/domain/booking"
	"github.com/alexxvives/JetChance-sub001/internal/domain/caller"
)

// HeaderIdempotencyKey はボディの idempotency_key の代わりに使えるヘッダー
const HeaderIdempotencyKey = "Idempotency-Key"

type BookingHandler struct {
	service ReservationServiceInterface
}

func NewBookingHandler(s ReservationServiceInterface) *BookingHandler {
	return &BookingHandler{service: s}
}

type CreateBookingRequest struct {
	FlightID        string `json:"flight_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	PassengerCount  int    `json:"passenger_count" validate:"required,min=1,max=100" example:"2"`
	TotalAmount     int64  `json:"total_amount" validate:"min=0" example:"300000"`
	PaymentMethod   string `json:"payment_method" validate:"max=50" example:"card"`
	SpecialRequests string `json:"special_requests" validate:"max=1000"`
	ContactEmail    string `json:"contact_email" validate:"omitempty,email" example:"tanaka@example.com"`
	IdempotencyKey  string `json:"idempotency_key" validate:"max=100" example:"checkout-2026-001"`
}

type BookingResponse struct {
	ID              string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	FlightID        string    `json:"flight_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	CustomerID      string    `json:"customer_id" example:"customer-123"`
	TotalPassengers int       `json:"total_passengers" example:"2"`
	TotalAmount     int64     `json:"total_amount" example:"300000"`
	PaymentMethod   string    `json:"payment_method,omitempty" example:"card"`
	SpecialRequests string    `json:"special_requests,omitempty"`
	ContactEmail    string    `json:"contact_email,omitempty"`
	Status          string    `json:"status" example:"pending"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID: b.ID, FlightID: b.FlightID, CustomerID: b.CustomerID,
		TotalPassengers: b.TotalPassengers, TotalAmount: b.TotalAmount,
		PaymentMethod: b.PaymentMethod, SpecialRequests: b.SpecialRequests,
		ContactEmail: b.ContactEmail, Status: string(b.Status),
		CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt,
	}
}

func toBookingResponses(bookings []*booking.Booking) []BookingResponse {
	resp := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		resp[i] = toBookingResponse(b)
	}
	return resp
}

// callerOf は JWTAuth が設定した呼び出し元を返す。未認証の場合はゼロ値
func callerOf(c echo.Context) caller.Caller {
	cl, _ := middleware.CallerFrom(c)
	return cl
}

// Create godoc
// @Summary 予約を作成
// @Description 空席を確保して予約を作成します。同じ冪等性キーの再送には既存の予約を返します
// @Tags bookings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "冪等性キー"
// @Param request body CreateBookingRequest true "予約情報"
// @Success 201 {object} BookingResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse "フライトが存在しない"
// @Failure 409 {object} api.ErrorResponse "空席不足・予約受付外"
// @Router /bookings [post]
func (h *BookingHandler) Create(c echo.Context) error {
	var req CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.Request().Header.Get(HeaderIdempotencyKey)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	b, err := h.service.CreateBooking(c.Request().Context(), callerOf(c), application.CreateBookingInput{
		FlightID:        req.FlightID,
		PassengerCount:  req.PassengerCount,
		TotalAmount:     req.TotalAmount,
		PaymentMethod:   req.PaymentMethod,
		SpecialRequests: req.SpecialRequests,
		ContactEmail:    req.ContactEmail,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toBookingResponse(b))
}

// GetByID godoc
// @Summary 予約を取得
// @Tags bookings
// @Produce json
// @Security BearerAuth
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /bookings/{id} [get]
func (h *BookingHandler) GetByID(c echo.Context) error {
	b, err := h.service.GetBooking(c.Request().Context(), callerOf(c), c.Param("id"))
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// List godoc
// @Summary 自分の予約一覧を取得
// @Tags bookings
// @Produce json
// @Security BearerAuth
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} BookingResponse
// @Router /bookings [get]
func (h *BookingHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	bookings, err := h.service.ListCustomerBookings(c.Request().Context(), callerOf(c), limit, offset)
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponses(bookings))
}

// ListByFlight godoc
// @Summary フライトの予約一覧を取得（運航者・管理者）
// @Tags flights
// @Produce json
// @Security BearerAuth
// @Param id path string true "フライトID"
// @Success 200 {array} BookingResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /flights/{id}/bookings [get]
func (h *BookingHandler) ListByFlight(c echo.Context) error {
	bookings, err := h.service.ListFlightBookings(c.Request().Context(), callerOf(c), c.Param("id"))
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponses(bookings))
}

// Confirm godoc
// @Summary 予約を確定（決済完了の通知）
// @Tags bookings
// @Produce json
// @Security BearerAuth
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /bookings/{id}/confirm [post]
func (h *BookingHandler) Confirm(c echo.Context) error {
	b, err := h.service.ConfirmBooking(c.Request().Context(), callerOf(c), c.Param("id"))
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description 予約をキャンセルし、座席を在庫に戻します
// @Tags bookings
// @Produce json
// @Security BearerAuth
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "キャンセル済み"
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c echo.Context) error {
	b, err := h.service.CancelBooking(c.Request().Context(), callerOf(c), c.Param("id"))
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}
