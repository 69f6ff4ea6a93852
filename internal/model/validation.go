package model

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrValidation はクライアント側の入力検証エラーを表します
var ErrValidation = errors.New("validation failed")

// FieldError は項目ごとの検証エラーです
type FieldError struct {
	Field   string
	Tag     string
	Message string
}

// ValidationError は送信前の入力検証で見つかったエラーの一覧です
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, " ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Has は指定した項目にエラーがあるかを返します
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

type validationContextKey struct{}

type validationContext struct {
	now time.Time
	loc *time.Location
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// エラーの項目名はJSONのキー名を使う
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		v.RegisterStructValidationCtx(notPastDateTime, CreateRequest{})
		validate = v
	})
	return validate
}

// 日付と時刻を合成した日時が現在時刻より前であればエラーにする
// 日付・時刻の形式エラーは項目単位の検証に任せる
func notPastDateTime(ctx context.Context, sl validator.StructLevel) {
	vc, ok := ctx.Value(validationContextKey{}).(validationContext)
	if !ok {
		return
	}
	req := sl.Current().Interface().(CreateRequest)
	if req.Date == "" || req.Time == "" {
		return
	}
	reservedAt, err := req.ReservedAt(vc.loc)
	if err != nil {
		return
	}
	if reservedAt.Before(vc.now) {
		sl.ReportError(req.Time, "time", "Time", "notpast", "")
	}
}

var fieldMessages = map[string]string{
	"name.required":      "予約者名を入力してください。",
	"date.required":      "日付を入力してください。",
	"date.datetime":      "日付はYYYY-MM-DD形式で入力してください。",
	"time.required":      "時刻を入力してください。",
	"time.datetime":      "時刻はHH:mm形式で入力してください。",
	"time.notpast":       "過去の日時は予約できません。",
	"partySize.min":      "人数は1名以上で入力してください。",
	"partySize.required": "人数を入力してください。",
}

// ValidateCreateRequest は予約作成リクエストを送信前に検証します
// nowは送信時点の現在時刻、locは日付・時刻を解釈するタイムゾーンです
func ValidateCreateRequest(req CreateRequest, now time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	ctx := context.WithValue(context.Background(), validationContextKey{}, validationContext{now: now, loc: loc})

	err := getValidator().StructCtx(ctx, req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate create request: %w", err)
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("%sの入力が不正です。", fe.Field())
		}
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: msg,
		})
	}
	return out
}
