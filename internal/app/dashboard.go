package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/uma-arai/sbcntr-dashboard/internal/client"
	"github.com/uma-arai/sbcntr-dashboard/internal/model"
	"github.com/uma-arai/sbcntr-dashboard/internal/service/dashboard"
	"github.com/uma-arai/sbcntr-dashboard/internal/view"
)

var (
	// ErrQuit はダッシュボードの終了が要求されたことを表します
	ErrQuit = errors.New("quit requested")
	// ErrUnknownCommand は解釈できないコマンドを表します
	ErrUnknownCommand = errors.New("unknown command")
	// ErrActionDisabled は現在のステータスでは無効な操作を表します
	ErrActionDisabled = errors.New("action disabled for current status")
)

const helpText = `コマンド:
  list | reload                         予約一覧を再取得
  add <名前> <日付> <時刻> <人数>        予約を登録 (例: add Kim 2099-01-01 18:00 4)
  approve <id>                          予約を承認
  cancel <id>                           予約をキャンセル
  dismiss                               通知を閉じる
  help                                  このヘルプを表示
  quit | exit                           終了
`

// Options はDashboardの生成に必要な設定です
type Options struct {
	Client      client.ReservationClient
	Clock       clockwork.Clock
	Location    *time.Location
	NoticeDelay time.Duration
	// Color がtrueの場合はステータスのバッジを色付きで描画します
	Color bool
}

// Dashboard は予約管理画面のコンポジションルートです
// Storeの状態をトーストと一覧に反映し、コマンドを各コンポーネントに振り分けます
type Dashboard struct {
	store *dashboard.ReservationStore
	form  *view.Form
	toast *view.Toast
	clock clockwork.Clock
	color bool

	mu       sync.Mutex
	notice   string
	showHelp bool

	unsubscribe func()
}

// New は新しいDashboardを作成します
func New(opts Options) *Dashboard {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	d := &Dashboard{
		store: dashboard.NewReservationStore(opts.Client),
		form:  view.NewForm(clock, opts.Location),
		toast: view.NewToast(clock, opts.NoticeDelay),
		clock: clock,
		color: opts.Color,
	}
	d.unsubscribe = d.store.Subscribe(d.onStateChange)
	return d
}

// Store は画面が使っている予約ストアを返します
func (d *Dashboard) Store() *dashboard.ReservationStore {
	return d.store
}

// Toast は画面が使っているトーストを返します
func (d *Dashboard) Toast() *view.Toast {
	return d.toast
}

// Start は初回の一覧取得を行います
// 取得に失敗した場合もエラーはトーストに表示されるため、画面は表示できます
func (d *Dashboard) Start(ctx context.Context) error {
	return d.store.Mount(ctx)
}

// Close はStoreの購読を解除し、表示中の通知を閉じます
func (d *Dashboard) Close() {
	if d.unsubscribe != nil {
		d.unsubscribe()
		d.unsubscribe = nil
	}
	d.toast.Close()
}

// onStateChange はStoreの状態に合わせてトーストを更新します
// 表示中と同じ通知であればタイマーをやり直しません
func (d *Dashboard) onStateChange(st dashboard.State) {
	next, ok := view.SelectNotification(st, d.clock.Now())
	current, showing := d.toast.Current()

	if !ok {
		if showing {
			d.toast.Close()
		}
		return
	}
	if showing && current.Type == next.Type && current.Message == next.Message {
		return
	}

	onClose := d.store.ClearSuccess
	if next.Type == model.NotificationTypeError {
		onClose = d.store.ClearError
	}
	d.toast.Show(next, onClose)
}

// Render は画面全体を描画します
func (d *Dashboard) Render(w io.Writer) error {
	st := d.store.Snapshot()

	if n, ok := d.toast.Current(); ok {
		if err := view.RenderToast(w, n); err != nil {
			return err
		}
	}

	d.mu.Lock()
	notice, showHelp := d.notice, d.showHelp
	d.mu.Unlock()

	if notice != "" {
		if _, err := fmt.Fprintf(w, "[入力エラー] %s\n", notice); err != nil {
			return err
		}
	}
	if showHelp {
		if _, err := io.WriteString(w, helpText); err != nil {
			return err
		}
	}

	if err := view.RenderList(w, view.ListProps{
		Reservations: st.Reservations,
		Loading:      st.Loading,
		Color:        d.color,
	}); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "新規予約: add <名前> <日付 %s以降> <時刻> <人数>\n", d.form.DateFloor())
	return err
}

// Exec は1行分のコマンドを実行します
// 入力検証に失敗した場合は入力エラーとして表示し、予約APIは呼び出しません
func (d *Dashboard) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)

	d.mu.Lock()
	d.notice = ""
	d.showHelp = false
	d.mu.Unlock()

	if len(fields) == 0 {
		return nil
	}

	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "list", "reload":
		return d.store.Load(ctx)
	case "add":
		return d.add(ctx, args)
	case "approve", "cancel":
		if len(args) != 1 {
			return d.usage(fmt.Errorf("%s requires exactly one id: %w", cmd, ErrUnknownCommand))
		}
		if err := d.checkAction(cmd, args[0]); err != nil {
			return err
		}
		if cmd == "approve" {
			return d.store.Approve(ctx, args[0])
		}
		return d.store.Cancel(ctx, args[0])
	case "dismiss":
		d.toast.Close()
		return nil
	case "help":
		d.mu.Lock()
		d.showHelp = true
		d.mu.Unlock()
		return nil
	case "quit", "exit":
		return ErrQuit
	default:
		return d.usage(fmt.Errorf("%q: %w", cmd, ErrUnknownCommand))
	}
}

// add は予約を登録します
// 名前に空白を含められるよう、末尾の3つを日付・時刻・人数として扱います
func (d *Dashboard) add(ctx context.Context, args []string) error {
	if len(args) < 4 {
		return d.usage(fmt.Errorf("add requires name, date, time and party size: %w", ErrUnknownCommand))
	}

	n := len(args)
	partySize, err := strconv.Atoi(args[n-1])
	if err != nil {
		// 数値でない場合は0として検証に任せる
		partySize = 0
	}
	d.form.SetValues(model.CreateRequest{
		Name:      strings.Join(args[:n-3], " "),
		Date:      args[n-3],
		Time:      args[n-2],
		PartySize: partySize,
	})

	err = d.form.Submit(ctx, func(ctx context.Context, req model.CreateRequest) error {
		_, err := d.store.Create(ctx, req)
		return err
	})
	if errors.Is(err, model.ErrValidation) {
		d.mu.Lock()
		d.notice = err.Error()
		d.mu.Unlock()
		log.Printf("Rejected reservation input: %v", err)
	}
	return err
}

// checkAction は一覧で無効表示になっている操作を拒否します
// 一覧にない予約の扱いはStoreに任せます
func (d *Dashboard) checkAction(cmd, id string) error {
	for _, item := range view.BuildListItems(d.store.Snapshot().Reservations) {
		if item.ID != id {
			continue
		}
		enabled, label := item.CanApprove, "承認"
		if cmd == "cancel" {
			enabled, label = item.CanCancel, "キャンセル"
		}
		if enabled {
			return nil
		}
		d.mu.Lock()
		d.notice = fmt.Sprintf("%sの予約は%sできません。", item.Badge.Label, label)
		d.mu.Unlock()
		return fmt.Errorf("%s %s: %w", cmd, id, ErrActionDisabled)
	}
	return nil
}

func (d *Dashboard) usage(err error) error {
	d.mu.Lock()
	d.showHelp = true
	d.mu.Unlock()
	return err
}
