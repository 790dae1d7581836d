package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/alexxvives/JetChance-sub001/internal/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Checker は依存先の疎通確認
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc は関数を Checker として扱う
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler はヘルスチェックハンドラー
type HealthHandler struct {
	checkers map[string]Checker
}

// NewHealthHandler はHealthHandlerを作成する
// checkers は /ready で確認する依存先（"database", "redis" など）
func NewHealthHandler(checkers map[string]Checker) *HealthHandler {
	if checkers == nil {
		checkers = map[string]Checker{}
	}
	return &HealthHandler{checkers: checkers}
}

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Check はヘルスチェックを行う
// @Summary ヘルスチェック
// @Description アプリケーションの健全性を確認する
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Check(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Ready は依存先への疎通を確認する
// @Summary レディネスチェック
// @Description データベース・Redis への疎通を確認する
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(h.checkers))
	for name, checker := range h.checkers {
		if err := checker.Ping(ctx); err != nil {
			logger.Warn("依存先の疎通確認に失敗しました", zap.String("dependency", name), zap.Error(err))
			checks[name] = "unavailable"
			status, code = "unavailable", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	return c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    checks,
	})
}
