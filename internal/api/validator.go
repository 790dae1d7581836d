package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// CustomValidator はEcho用のカスタムバリデーター
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator は新しいバリデーターを作成する
func NewValidator() *CustomValidator {
	v := validator.New()
	// エラーメッセージには JSON のフィールド名を使う
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// 空港コード（IATA 3レター）
	_ = v.RegisterValidation("iata", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if len(s) != 3 {
			return false
		}
		for _, r := range s {
			if !(r >= 'A' && r <= 'Z') && !(r >= 'a' && r <= 'z') {
				return false
			}
		}
		return true
	})
	return &CustomValidator{validator: v}
}

// Validate はリクエストのバリデーションを実行する
func (cv *CustomValidator) Validate(i interface{}) error {
	err := cv.validator.Struct(i)
	if err == nil {
		return nil
	}

	resp := ErrorResponse{Error: "入力内容に誤りがあります", Code: http.StatusBadRequest, Reason: "validation_failed"}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			resp.Details = append(resp.Details, describe(fe))
		}
	} else {
		resp.Details = []string{err.Error()}
	}
	return echo.NewHTTPError(http.StatusBadRequest, resp)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s は必須です", fe.Field())
	case "min", "gte":
		return fmt.Sprintf("%s は %s 以上である必要があります", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s は %s 以下である必要があります", fe.Field(), fe.Param())
	case "email":
		return fmt.Sprintf("%s はメールアドレスの形式ではありません", fe.Field())
	case "iata":
		return fmt.Sprintf("%s は3文字の空港コードである必要があります", fe.Field())
	case "gtfield":
		return fmt.Sprintf("%s は %s より後である必要があります", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s が不正です（%s）", fe.Field(), fe.Tag())
	}
}
