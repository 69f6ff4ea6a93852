package view

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/uma-arai/sbcntr-dashboard/internal/model"
	"github.com/uma-arai/sbcntr-dashboard/internal/service/dashboard"
)

// DefaultToastDelay はトーストを自動で閉じるまでの時間です
const DefaultToastDelay = 3 * time.Second

// Toast は一時的な通知の表示領域です
// 表示から一定時間で自動的に閉じ、手動で閉じることもできます
type Toast struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	delay   time.Duration
	current *model.Notification
	onClose func()
	timer   clockwork.Timer
	// generation は表示ごとに増え、古いタイマーによるクローズを無視するために使います
	generation uint64
}

// NewToast は新しいToastを作成します
func NewToast(clock clockwork.Clock, delay time.Duration) *Toast {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if delay <= 0 {
		delay = DefaultToastDelay
	}
	return &Toast{clock: clock, delay: delay}
}

// Show は通知を表示し、自動で閉じるタイマーを開始します
// 表示中に新しい通知が来た場合はタイマーをやり直します
func (t *Toast) Show(n model.Notification, onClose func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.generation++
	gen := t.generation
	t.current = &n
	t.onClose = onClose
	t.timer = t.clock.AfterFunc(t.delay, func() {
		t.closeGeneration(gen)
	})
}

// Close は表示中の通知をすぐに閉じます
func (t *Toast) Close() {
	t.mu.Lock()
	gen := t.generation
	t.mu.Unlock()
	t.closeGeneration(gen)
}

func (t *Toast) closeGeneration(gen uint64) {
	t.mu.Lock()
	if gen != t.generation || t.current == nil {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.current = nil
	onClose := t.onClose
	t.onClose = nil
	t.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}

// Current は表示中の通知を返します
func (t *Toast) Current() (model.Notification, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return model.Notification{}, false
	}
	return *t.current, true
}

// SelectNotification は状態から表示する通知を選びます
// エラーと成功が両方ある場合はエラーを優先します
func SelectNotification(st dashboard.State, now time.Time) (model.Notification, bool) {
	switch {
	case st.Error != "":
		return model.NewErrorNotification(st.Error, now), true
	case st.Success != "":
		return model.NewSuccessNotification(st.Success, now), true
	default:
		return model.Notification{}, false
	}
}

// RenderToast は通知を描画します
func RenderToast(w io.Writer, n model.Notification) error {
	label := "成功"
	if n.Type == model.NotificationTypeError {
		label = "エラー"
	}
	_, err := fmt.Fprintf(w, "[%s] %s  (dismissで閉じる)\n", label, n.Message)
	return err
}
