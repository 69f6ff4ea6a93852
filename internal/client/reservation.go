package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-dashboard/internal/model"
)

const reservationsPath = "/api/reservations"

// ReservationClient は予約APIへの操作を担当するインターフェースです
type ReservationClient interface {
	List(ctx context.Context) ([]model.Reservation, error)
	Create(ctx context.Context, req model.CreateRequest) (model.Reservation, error)
	Approve(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
}

// ReservationClientImpl はReservationClientのHTTP実装です
type ReservationClientImpl struct {
	http *HTTP
}

// NewReservationClient は新しいReservationClientを作成します
func NewReservationClient(h *HTTP) *ReservationClientImpl {
	return &ReservationClientImpl{http: h}
}

// List は予約一覧を取得します
// 中間キャッシュを経由せず常に最新の一覧を取得します
func (c *ReservationClientImpl) List(ctx context.Context) ([]model.Reservation, error) {
	ctx, closeSeg := beginSubsegment(ctx, "ReservationClient.List")
	var err error
	defer func() { closeSeg(err) }()

	header := http.Header{}
	header.Set("Accept", "application/json")
	header.Set("Cache-Control", "no-cache, no-store")
	header.Set("Pragma", "no-cache")

	resp, err := c.http.do(ctx, http.MethodGet, reservationsPath, nil, header)
	if err != nil {
		err = &TransportError{Op: OpList, Err: err}
		return nil, err
	}
	if !resp.ok() {
		err = newRequestError(OpList, resp)
		return nil, err
	}

	var payloads []reservationPayload
	if err = json.Unmarshal(resp.Body, &payloads); err != nil {
		err = &RequestError{Op: OpList, StatusCode: resp.StatusCode, Message: FallbackMessage(OpList), Err: fmt.Errorf("failed to decode reservations: %w", err)}
		return nil, err
	}

	reservations := make([]model.Reservation, 0, len(payloads))
	for _, p := range payloads {
		r, convErr := p.toModel(c.http.Location())
		if convErr != nil {
			err = &RequestError{Op: OpList, StatusCode: resp.StatusCode, Message: FallbackMessage(OpList), Err: convErr}
			return nil, err
		}
		reservations = append(reservations, r)
	}

	return reservations, nil
}

// Create は予約を作成し、サーバーが採番した予約を返します
func (c *ReservationClientImpl) Create(ctx context.Context, req model.CreateRequest) (model.Reservation, error) {
	ctx, closeSeg := beginSubsegment(ctx, "ReservationClient.Create")
	var err error
	defer func() { closeSeg(err) }()

	body, err := json.Marshal(req)
	if err != nil {
		err = fmt.Errorf("failed to marshal create request: %w", err)
		return model.Reservation{}, err
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	header.Set("Content-Type", "application/json")

	resp, err := c.http.do(ctx, http.MethodPost, reservationsPath, bytes.NewReader(body), header)
	if err != nil {
		err = &TransportError{Op: OpCreate, Err: err}
		return model.Reservation{}, err
	}
	if !resp.ok() {
		err = newRequestError(OpCreate, resp)
		return model.Reservation{}, err
	}

	var p reservationPayload
	if err = json.Unmarshal(resp.Body, &p); err != nil {
		err = &RequestError{Op: OpCreate, StatusCode: resp.StatusCode, Message: FallbackMessage(OpCreate), Err: fmt.Errorf("failed to decode reservation: %w", err)}
		return model.Reservation{}, err
	}

	created, convErr := p.toModel(c.http.Location())
	if convErr != nil {
		err = &RequestError{Op: OpCreate, StatusCode: resp.StatusCode, Message: FallbackMessage(OpCreate), Err: convErr}
		return model.Reservation{}, err
	}

	return created, nil
}

// Approve は予約を承認します
// 遷移の可否はサーバーが判断するため、成功を前提にしません
func (c *ReservationClientImpl) Approve(ctx context.Context, id string) error {
	return c.patchStatus(ctx, OpApprove, id)
}

// Cancel は予約をキャンセルします
func (c *ReservationClientImpl) Cancel(ctx context.Context, id string) error {
	return c.patchStatus(ctx, OpCancel, id)
}

func (c *ReservationClientImpl) patchStatus(ctx context.Context, op Operation, id string) (err error) {
	ctx, closeSeg := beginSubsegment(ctx, "ReservationClient."+string(op))
	defer func() { closeSeg(err) }()

	header := http.Header{}
	header.Set("Accept", "application/json")

	path := fmt.Sprintf("%s/%s/%s", reservationsPath, url.PathEscape(id), op)
	resp, err := c.http.do(ctx, http.MethodPatch, path, nil, header)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if !resp.ok() {
		return newRequestError(op, resp)
	}

	return nil
}

// beginSubsegment はX-Rayのサブセグメントを開始し、終了用の関数を返します
// 親セグメントがない場合は何もしない関数を返します
func beginSubsegment(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, seg := xray.BeginSubsegment(ctx, name)
	if seg == nil {
		return ctx, func(error) {}
	}
	return ctx, func(err error) { seg.Close(err) }
}

// reservationPayload は予約APIが返す予約のJSON表現です
// サーバーによって予約日時が date/time に分割される場合と reservedAt でまとめて返される場合があります
type reservationPayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CustomerName string `json:"customerName"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	ReservedAt   string `json:"reservedAt"`
	PartySize    int    `json:"partySize"`
	Status       string `json:"status"`
	CreatedAt    string `json:"createdAt"`
}

func (p reservationPayload) toModel(loc *time.Location) (model.Reservation, error) {
	name := p.Name
	if name == "" {
		name = p.CustomerName
	}

	var reservedAt time.Time
	var err error
	switch {
	case p.Date != "" && p.Time != "":
		reservedAt, err = parseLocalDateTime(p.Date+"T"+p.Time, loc)
	case p.ReservedAt != "":
		reservedAt, err = parseLocalDateTime(p.ReservedAt, loc)
	}
	if err != nil {
		return model.Reservation{}, fmt.Errorf("invalid reserved at for reservation %s: %w", p.ID, err)
	}

	var createdAt time.Time
	if p.CreatedAt != "" {
		createdAt, err = parseLocalDateTime(p.CreatedAt, loc)
		if err != nil {
			return model.Reservation{}, fmt.Errorf("invalid created at for reservation %s: %w", p.ID, err)
		}
	}

	status, err := model.ParseStatus(p.Status)
	if err != nil {
		// 未知のステータスはそのまま保持し、操作不可として表示する
		log.Printf("Unknown status %q for reservation %s", p.Status, p.ID)
		status = model.Status(p.Status)
	}

	return model.Reservation{
		ID:           p.ID,
		CustomerName: name,
		ReservedAt:   reservedAt,
		PartySize:    p.PartySize,
		Status:       status,
		CreatedAt:    createdAt,
	}, nil
}

// タイムゾーン付きの日時はそのまま、LocalDateTime形式はlocで解釈する
var localDateTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

func parseLocalDateTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range localDateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date time format: %q", s)
}
