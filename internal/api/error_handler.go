package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/alexxvives/JetChance-sub001/internal/application"
	"github.com/alexxvives/JetChance-sub001/internal/domain/booking"
	"github.com/alexxvives/JetChance-sub001/internal/domain/caller"
	"github.com/alexxvives/JetChance-sub001/internal/domain/flight"
	"github.com/alexxvives/JetChance-sub001/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    int      `json:"code,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Details []string `json:"details,omitempty"`
}

// errorKind はドメインエラーとHTTPステータス・理由コードの対応
type errorKind struct {
	target error
	status int
	reason string
}

// 上から順に評価する（個別のエラーを包括的なエラーより先に置く）
var errorKinds = []errorKind{
	{flight.ErrFlightNotFound, http.StatusNotFound, "flight_not_found"},
	{booking.ErrBookingNotFound, http.StatusNotFound, "booking_not_found"},
	{flight.ErrFlightNotBookable, http.StatusConflict, "flight_not_bookable"},
	{flight.ErrInsufficientSeats, http.StatusConflict, "insufficient_seats"},
	{flight.ErrSeatRestoreExceedsCapacity, http.StatusConflict, "seat_restore_exceeds_capacity"},
	{flight.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{booking.ErrBookingAlreadyCancelled, http.StatusConflict, "already_cancelled"},
	{booking.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{booking.ErrIdempotencyKeyAlreadyExists, http.StatusConflict, "idempotency_key_conflict"},
	{application.ErrBookingInProgress, http.StatusConflict, "booking_in_progress"},
	{flight.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{booking.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{caller.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{caller.ErrForbidden, http.StatusForbidden, "forbidden"},
}

// ToHTTPError はドメインエラーを echo.HTTPError に変換する
// 対応のないエラー（ストレージ障害を含む）は 500 として扱い、詳細はログにのみ残す
func ToHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return &echo.HTTPError{
				Code:     k.status,
				Message:  ErrorResponse{Error: err.Error(), Code: k.status, Reason: k.reason},
				Internal: err,
			}
		}
	}
	return &echo.HTTPError{
		Code:     http.StatusInternalServerError,
		Message:  ErrorResponse{Error: "内部サーバーエラー", Code: http.StatusInternalServerError, Reason: "internal"},
		Internal: err,
	}
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	he := ToHTTPError(err)
	resp := ErrorResponse{Code: he.Code}
	switch m := he.Message.(type) {
	case ErrorResponse:
		resp = m
	case string:
		resp.Error = m
	default:
		resp.Error = http.StatusText(he.Code)
	}

	// エラーログを出力（5xx エラーの場合）
	if he.Code >= 500 {
		cause := err
		if he.Internal != nil {
			cause = he.Internal
		}
		logger.Error("サーバーエラー",
			zap.Int("status", he.Code),
			zap.String("path", c.Request().URL.Path),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(cause),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(he.Code)
	} else {
		err = c.JSON(he.Code, resp)
	}
	if err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}
