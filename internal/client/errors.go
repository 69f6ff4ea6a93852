package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Operation は予約APIに対する論理的な操作です
type Operation string

const (
	OpList    Operation = "list"
	OpCreate  Operation = "create"
	OpApprove Operation = "approve"
	OpCancel  Operation = "cancel"
)

// 操作ごとのフォールバックメッセージ
// サーバーからメッセージが得られない場合に使用します
var fallbackMessages = map[Operation]string{
	OpList:    "予約一覧の取得に失敗しました。",
	OpCreate:  "予約の作成に失敗しました。",
	OpApprove: "予約の承認に失敗しました。",
	OpCancel:  "予約のキャンセルに失敗しました。",
}

// TransportMessage はレスポンスを受け取れなかった場合の表示メッセージです
const TransportMessage = "サーバーに接続できませんでした。"

// UnknownMessage は予約API以外のエラーの表示メッセージです
const UnknownMessage = "不明なエラーが発生しました。"

var (
	// ErrRequestFailed はレスポンスのステータスが成功以外だったことを表します
	ErrRequestFailed = errors.New("request failed")
	// ErrTransport はレスポンスを受け取れなかったことを表します
	ErrTransport = errors.New("transport failure")
)

// FallbackMessage は操作ごとのフォールバックメッセージを返します
func FallbackMessage(op Operation) string {
	if msg, ok := fallbackMessages[op]; ok {
		return msg
	}
	return UnknownMessage
}

// RequestError はステータスが成功以外のレスポンスを表すエラーです
type RequestError struct {
	Op         Operation
	StatusCode int
	Message    string
	// FromServer はMessageがサーバーから返されたものかを表します
	FromServer bool
	Err        error
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func (e *RequestError) Is(target error) bool {
	return target == ErrRequestFailed
}

// TransportError はレスポンスを受け取れなかったことを表すエラーです
// DNS解決の失敗、接続拒否、タイムアウトなどが該当します
type TransportError struct {
	Op  Operation
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s reservations: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// newRequestError はレスポンスボディからメッセージを取り出してRequestErrorを作成します
// ボディがJSONでない、messageがない、空白のみの場合はフォールバックメッセージを使います
func newRequestError(op Operation, resp *response) *RequestError {
	e := &RequestError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    FallbackMessage(op),
	}

	if len(resp.Body) == 0 || !gjson.ValidBytes(resp.Body) {
		return e
	}

	msg := gjson.GetBytes(resp.Body, "message")
	if msg.Type == gjson.String && strings.TrimSpace(msg.String()) != "" {
		e.Message = msg.String()
		e.FromServer = true
	}
	return e
}

// DisplayMessage はエラーを画面に表示する1つのメッセージに変換します
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Message
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return TransportMessage
	}

	return UnknownMessage
}
