package model

import (
	"fmt"
	"time"
)

// Status は予約のステータスを表します
type Status string

const (
	// StatusPending は承認待ちの予約を表します
	StatusPending Status = "PENDING"
	// StatusApproved は承認済みの予約を表します
	StatusApproved Status = "APPROVED"
	// StatusCancelled はキャンセル済みの予約を表します
	StatusCancelled Status = "CANCELLED"
)

// 許可されているステータス遷移
// CANCELLEDからの遷移と同一ステータスへの遷移は存在しない
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending:   {StatusApproved: true, StatusCancelled: true},
	StatusApproved:  {StatusCancelled: true},
	StatusCancelled: {},
}

// ParseStatus は文字列をStatusに変換します
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusApproved, StatusCancelled:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown status: %s", s)
	}
}

// CanTransition はfromからtoへの遷移が許可されているかを返します
func CanTransition(from, to Status) bool {
	m, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return m[to]
}

// CanApprove は承認操作が可能かを返します
func (s Status) CanApprove() bool {
	return CanTransition(s, StatusApproved)
}

// CanCancel はキャンセル操作が可能かを返します
func (s Status) CanCancel() bool {
	return CanTransition(s, StatusCancelled)
}

// Known は定義済みのステータスかを返します
func (s Status) Known() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Reservation は予約のドメインモデルです
// 値型のため、コピーがそのままスナップショットになります
type Reservation struct {
	ID           string    `json:"id"`
	CustomerName string    `json:"name"`
	ReservedAt   time.Time `json:"reservedAt"`
	PartySize    int       `json:"partySize"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// WithStatus はステータスのみを変更したコピーを返します
func (r Reservation) WithStatus(status Status) Reservation {
	r.Status = status
	return r
}

// CreateRequest は予約作成リクエストです
// フィールドの順序がそのままJSONのキー順になります
type CreateRequest struct {
	Name      string `json:"name" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Time      string `json:"time" validate:"required,datetime=15:04"`
	PartySize int    `json:"partySize" validate:"min=1"`
}

// DefaultPartySize はフォーム初期値の人数です
const DefaultPartySize = 2

// NewCreateRequest はフォームの初期値を返します
func NewCreateRequest() CreateRequest {
	return CreateRequest{PartySize: DefaultPartySize}
}

// ReservedAt は日付と時刻を合成して予約日時を返します
func (r CreateRequest) ReservedAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", r.Date+" "+r.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reservation date time: %w", err)
	}
	return t, nil
}
