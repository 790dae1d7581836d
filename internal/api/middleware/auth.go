package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/alexxvives/JetChance-sub001/internal/api"
	"github.com/alexxvives/JetChance-sub001/internal/config"
	"github.com/alexxvives/JetChance-sub001/internal/domain/caller"
)

const callerContextKey = "caller"

var errInvalidToken = errors.New("トークンが無効または期限切れです")

// Claims はアクセストークンのクレーム
// 顧客ID（運航者・管理者の場合はそのID）は sub に入る
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuth は Bearer トークンを検証し、呼び出し元をコンテキストに格納する
// トークンの発行はこのサービスの責務ではない
func JWTAuth(cfg *config.AuthConfig) echo.MiddlewareFunc {
	secret := []byte(cfg.JWTSecret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return unauthorized("Authorization ヘッダーが必要です")
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return unauthorized("Authorization ヘッダーは Bearer {token} の形式である必要があります")
			}

			claims := &Claims{}
			token, err := parser.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return secret, nil
			})
			if err != nil || !token.Valid {
				return unauthorized(errInvalidToken.Error())
			}
			if cfg.Issuer != "" && !claims.VerifyIssuer(cfg.Issuer, true) {
				return unauthorized(errInvalidToken.Error())
			}

			role := caller.Role(claims.Role)
			if claims.Subject == "" || !role.IsValid() {
				return unauthorized(errInvalidToken.Error())
			}

			SetCaller(c, caller.Caller{
				CustomerID: claims.Subject,
				Email:      claims.Email,
				Role:       role,
			})
			return next(c)
		}
	}
}

// RequireRole は roles のいずれかを持つ呼び出し元のみ通す。JWTAuth の後に使う
func RequireRole(roles ...caller.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cl, ok := CallerFrom(c)
			if !ok {
				return api.ToHTTPError(caller.ErrUnauthenticated)
			}
			if err := cl.Require(roles...); err != nil {
				return api.ToHTTPError(err)
			}
			return next(c)
		}
	}
}

// CallerFrom は JWTAuth が格納した呼び出し元を返す
func CallerFrom(c echo.Context) (caller.Caller, bool) {
	cl, ok := c.Get(callerContextKey).(caller.Caller)
	return cl, ok
}

// SetCaller は呼び出し元をコンテキストに格納する
func SetCaller(c echo.Context, cl caller.Caller) {
	c.Set(callerContextKey, cl)
}

// SignToken は呼び出し元のアクセストークンを発行する（テストと開発用）
func SignToken(cfg *config.AuthConfig, cl caller.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: cl.Email,
		Role:  string(cl.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cl.CustomerID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

func unauthorized(message string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusUnauthorized, api.ErrorResponse{
		Error:  message,
		Code:   http.StatusUnauthorized,
		Reason: "unauthenticated",
	})
}
