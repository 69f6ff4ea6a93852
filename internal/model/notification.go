package model

import "time"

// NotificationType は通知の種類を表します
type NotificationType string

const (
	// NotificationTypeError は操作失敗のトースト通知を表します
	NotificationTypeError NotificationType = "error"
	// NotificationTypeSuccess は操作成功のトースト通知を表します
	NotificationTypeSuccess NotificationType = "success"
	// NotificationTypeReservation はバッチ処理で確定した予約の通知を表します
	NotificationTypeReservation NotificationType = "reservation"
)

// Notification は画面やバッチ出力に渡す通知の定義です
type Notification struct {
	Type      NotificationType `json:"type"`
	Message   string           `json:"message,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Data      interface{}      `json:"data,omitempty"`
}

// NewErrorNotification はエラー通知を作成します
func NewErrorNotification(message string, now time.Time) Notification {
	return Notification{
		Type:      NotificationTypeError,
		Message:   message,
		CreatedAt: now,
	}
}

// NewSuccessNotification は成功通知を作成します
func NewSuccessNotification(message string, now time.Time) Notification {
	return Notification{
		Type:      NotificationTypeSuccess,
		Message:   message,
		CreatedAt: now,
	}
}

// NewReservationNotification はステータスが確定した予約から通知を作成します
func NewReservationNotification(r Reservation, now time.Time) Notification {
	var message string
	switch r.Status {
	case StatusApproved:
		message = "予約が承認されました"
	case StatusCancelled:
		message = "予約がキャンセルされました"
	default:
		message = "予約のステータスが更新されました"
	}

	return Notification{
		Type:      NotificationTypeReservation,
		Message:   message,
		CreatedAt: now,
		Data: map[string]interface{}{
			"id":          r.ID,
			"name":        r.CustomerName,
			"reserved_at": r.ReservedAt.Format("2006-01-02 15:04"),
			"party_size":  r.PartySize,
			"status":      string(r.Status),
		},
	}
}
