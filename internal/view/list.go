package view

import (
	"fmt"
	"io"
	"strings"

	"github.com/uma-arai/sbcntr-dashboard/internal/model"
)

// ReservedAtLayout は予約日時の表示形式です
// 利用者のロケールに依存しない24時間表記に固定しています
const ReservedAtLayout = "2006-01-02 15:04"

// Badge はステータスの表示ラベルとスタイルです
type Badge struct {
	Label string
	Style string
}

var badges = map[model.Status]Badge{
	model.StatusPending:   {Label: "承認待ち", Style: "\x1b[33m"},
	model.StatusApproved:  {Label: "承認済み", Style: "\x1b[32m"},
	model.StatusCancelled: {Label: "キャンセル", Style: "\x1b[90m"},
}

var unknownBadge = Badge{Label: "不明", Style: "\x1b[31m"}

const styleReset = "\x1b[0m"

// BadgeFor はステータスに対応するバッジを返します
func BadgeFor(s model.Status) Badge {
	if b, ok := badges[s]; ok {
		return b
	}
	return unknownBadge
}

// ListItem は一覧の1行分の表示内容です
type ListItem struct {
	ID         string
	Name       string
	ReservedAt string
	PartySize  int
	Badge      Badge
	CanApprove bool
	CanCancel  bool
}

// ListProps は一覧の描画に必要な状態です
type ListProps struct {
	Reservations []model.Reservation
	Loading      bool
	// Color がfalseの場合はバッジのスタイルを出力しません
	Color bool
}

// BuildListItems は予約から表示用の行を作成します
// 操作の可否は現在のステータスだけから決まります
func BuildListItems(reservations []model.Reservation) []ListItem {
	items := make([]ListItem, len(reservations))
	for i, r := range reservations {
		items[i] = ListItem{
			ID:         r.ID,
			Name:       r.CustomerName,
			ReservedAt: r.ReservedAt.Format(ReservedAtLayout),
			PartySize:  r.PartySize,
			Badge:      BadgeFor(r.Status),
			CanApprove: r.Status.CanApprove(),
			CanCancel:  r.Status.CanCancel(),
		}
	}
	return items
}

const (
	loadingText = "予約一覧を読み込んでいます..."
	emptyText   = "登録された予約はありません。"
)

// RenderList は予約一覧を描画します
// 読み込み中、0件、一覧のいずれか1つだけを出力します
func RenderList(w io.Writer, props ListProps) error {
	if props.Loading {
		_, err := fmt.Fprintln(w, loadingText)
		return err
	}

	if len(props.Reservations) == 0 {
		_, err := fmt.Fprintln(w, emptyText)
		return err
	}

	var b strings.Builder
	for _, item := range BuildListItems(props.Reservations) {
		badge := "[" + item.Badge.Label + "]"
		if props.Color {
			badge = item.Badge.Style + badge + styleReset
		}
		fmt.Fprintf(&b, "- %s (%s)\n", item.Name, item.ID)
		fmt.Fprintf(&b, "  %s・%d名 %s\n", item.ReservedAt, item.PartySize, badge)
		fmt.Fprintf(&b, "  %s %s\n", action("承認", item.CanApprove), action("キャンセル", item.CanCancel))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func action(label string, enabled bool) string {
	if enabled {
		return "[" + label + "]"
	}
	return "(" + label + ":無効)"
}
