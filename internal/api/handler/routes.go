package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/alexxvives/JetChance-sub001/internal/api/middleware"
	"github.com/alexxvives/JetChance-sub001/internal/config"
	"github.com/alexxvives/JetChance-sub001/internal/domain/caller"
)

// Handlers はルーティング対象のハンドラー一式
type Handlers struct {
	Flight  *FlightHandler
	Booking *BookingHandler
	Health  *HealthHandler
}

// RegisterRoutes は /health, /ready と /api/v1 以下のルートを登録する
// フライトの参照系は認証不要、それ以外は Bearer トークンが必要
func RegisterRoutes(e *echo.Echo, auth *config.AuthConfig, h Handlers) {
	e.GET("/health", h.Health.Check)
	e.GET("/ready", h.Health.Ready)

	v1 := e.Group("/api/v1")
	v1.GET("/flights", h.Flight.Search)
	v1.GET("/flights/:id", h.Flight.GetByID)
	v1.GET("/flights/:id/availability", h.Flight.Availability)

	authed := v1.Group("", middleware.JWTAuth(auth))

	operators := middleware.RequireRole(caller.RoleOperator, caller.RoleAdmin)
	authed.POST("/flights", h.Flight.Create, operators)
	authed.POST("/flights/:id/submit", h.Flight.Submit, operators)
	authed.POST("/flights/:id/approve", h.Flight.Approve, middleware.RequireRole(caller.RoleAdmin))
	authed.POST("/flights/:id/cancel", h.Flight.Cancel, operators)
	authed.POST("/flights/:id/complete", h.Flight.Complete, operators)
	authed.GET("/flights/:id/bookings", h.Booking.ListByFlight, operators)

	authed.POST("/bookings", h.Booking.Create, middleware.RequireRole(caller.RoleCustomer, caller.RoleAdmin))
	authed.GET("/bookings", h.Booking.List)
	authed.GET("/bookings/:id", h.Booking.GetByID)
	authed.POST("/bookings/:id/confirm", h.Booking.Confirm, middleware.RequireRole(caller.RoleAdmin))
	authed.POST("/bookings/:id/cancel", h.Booking.Cancel)
}
