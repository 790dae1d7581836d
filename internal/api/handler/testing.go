package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/alexxvives/JetChance-sub001/internal/api"
	"github.com/alexxvives/JetChance-sub001/internal/api/middleware"
	"github.com/alexxvives/JetChance-sub001/internal/domain/caller"
)

// NewTestEcho はテスト用のEchoインスタンスを作成する
func NewTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	return e
}

// WithCaller は認証済みの呼び出し元をコンテキストに設定する（テスト用）
func WithCaller(c echo.Context, cl caller.Caller) {
	middleware.SetCaller(c, cl)
}
