package view

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/uma-arai/sbcntr-dashboard/internal/model"
)

// ErrSubmitInFlight は送信中に再度送信しようとしたことを表します
var ErrSubmitInFlight = errors.New("form submission already in flight")

// SubmitFunc はフォームの値を受け取って予約を登録する関数です
// エラーを返した場合、フォームは入力値を保持します
type SubmitFunc func(ctx context.Context, req model.CreateRequest) error

// Form は予約登録フォームです
// 入力検証を行い、実際の登録はSubmitFuncに委譲します
type Form struct {
	mu         sync.Mutex
	values     model.CreateRequest
	submitting bool
	clock      clockwork.Clock
	loc        *time.Location
}

// NewForm は初期値の入ったフォームを作成します
func NewForm(clock clockwork.Clock, loc *time.Location) *Form {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Form{
		values: model.NewCreateRequest(),
		clock:  clock,
		loc:    loc,
	}
}

// Values は現在の入力値を返します
func (f *Form) Values() model.CreateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values
}

// SetValues は入力値をまとめて設定します
func (f *Form) SetValues(v model.CreateRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = v
}

func (f *Form) SetName(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values.Name = name
}

func (f *Form) SetDate(date string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values.Date = date
}

func (f *Form) SetTime(t string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values.Time = t
}

func (f *Form) SetPartySize(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values.PartySize = n
}

// Submitting は送信中かどうかを返します
// 送信中は送信ボタンを無効にします
func (f *Form) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// DateFloor は日付入力の下限(今日)を返します
func (f *Form) DateFloor() string {
	return f.clock.Now().In(f.loc).Format("2006-01-02")
}

// TimeFloor は選択中の日付が今日の場合のみ時刻入力の下限(現在時刻)を返します
// 入力補助のためのもので、送信時の検証の代わりにはなりません
func (f *Form) TimeFloor() string {
	now := f.clock.Now().In(f.loc)
	if f.Values().Date != now.Format("2006-01-02") {
		return ""
	}
	return now.Format("15:04")
}

// Validate は送信時点の現在時刻で入力値を検証します
func (f *Form) Validate() error {
	return model.ValidateCreateRequest(f.Values(), f.clock.Now(), f.loc)
}

// Submit は入力値を検証してからsubmitを呼び出します
// 検証に失敗した場合はsubmitを呼ばずに*model.ValidationErrorを返します
// submitが成功した場合はフォームを初期値に戻し、失敗した場合は入力値を保持します
func (f *Form) Submit(ctx context.Context, submit SubmitFunc) error {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return ErrSubmitInFlight
	}
	values := f.values
	f.mu.Unlock()

	if err := model.ValidateCreateRequest(values, f.clock.Now(), f.loc); err != nil {
		return err
	}

	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return ErrSubmitInFlight
	}
	f.submitting = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
	}()

	if err := submit(ctx, values); err != nil {
		return err
	}

	f.mu.Lock()
	f.values = model.NewCreateRequest()
	f.mu.Unlock()
	return nil
}
