package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uma-arai/sbcntr-dashboard/internal/model"
)

func TestMain(m *testing.M) {
	// テストではX-Rayデーモンへの送信を行わない
	os.Setenv("AWS_XRAY_SDK_DISABLED", "TRUE")
	os.Exit(m.Run())
}

// recordedRequest はフェイクサーバーが受け取ったリクエストです
type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

// fakeAPI は予約APIのフェイクです
type fakeAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	body     string
}

func (f *fakeAPI) handler(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.EscapedPath(),
		Header: r.Header.Clone(),
		Body:   string(b),
	})
	status, body := f.status, f.body
	f.mu.Unlock()

	if body != "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (f *fakeAPI) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newFakeAPI(t *testing.T, status int, body string) (*fakeAPI, *ReservationClientImpl) {
	t.Helper()

	f := &fakeAPI{status: status, body: body}
	r := mux.NewRouter()
	r.HandleFunc("/api/reservations", f.handler).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/api/reservations/{id}/approve", f.handler).Methods(http.MethodPatch)
	r.HandleFunc("/api/reservations/{id}/cancel", f.handler).Methods(http.MethodPatch)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	h, err := NewHTTP(HTTPConfig{BaseURL: srv.URL + "/", Timeout: 2 * time.Second, Location: time.UTC})
	require.NoError(t, err)

	return f, NewReservationClient(h)
}

func TestReservationClient_List(t *testing.T) {
	body := `[
		{"id":"r2","name":"Lee","date":"2099-01-02","time":"19:30","partySize":2,"status":"APPROVED","createdAt":"2099-01-01T11:00:00Z"},
		{"id":"r1","customerName":"Kim","reservedAt":"2099-01-01T18:00:00","partySize":4,"status":"PENDING","createdAt":"2099-01-01T10:00:00"}
	]`
	f, c := newFakeAPI(t, http.StatusOK, body)

	got, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, model.Reservation{
		ID:           "r2",
		CustomerName: "Lee",
		ReservedAt:   time.Date(2099, 1, 2, 19, 30, 0, 0, time.UTC),
		PartySize:    2,
		Status:       model.StatusApproved,
		CreatedAt:    time.Date(2099, 1, 1, 11, 0, 0, 0, time.UTC),
	}, got[0])
	assert.Equal(t, "Kim", got[1].CustomerName)
	assert.True(t, got[1].ReservedAt.Equal(time.Date(2099, 1, 1, 18, 0, 0, 0, time.UTC)))
	assert.Equal(t, model.StatusPending, got[1].Status)

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, "/api/reservations", reqs[0].Path)
	assert.Equal(t, "application/json", reqs[0].Header.Get("Accept"))
	assert.Contains(t, reqs[0].Header.Get("Cache-Control"), "no-store")
	assert.NotEmpty(t, reqs[0].Header.Get("X-Request-ID"))
	assert.Empty(t, reqs[0].Body)
}

func TestReservationClient_ListErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantServer  bool
	}{
		{name: "サーバーのメッセージを使用", status: http.StatusInternalServerError, body: `{"message":"DB down"}`, wantMessage: "DB down", wantServer: true},
		{name: "ボディなし", status: http.StatusInternalServerError, body: "", wantMessage: "予約一覧の取得に失敗しました。"},
		{name: "JSONでないボディ", status: http.StatusBadGateway, body: "<html>bad gateway</html>", wantMessage: "予約一覧の取得に失敗しました。"},
		{name: "空白のみのメッセージ", status: http.StatusInternalServerError, body: `{"message":"   "}`, wantMessage: "予約一覧の取得に失敗しました。"},
		{name: "文字列でないメッセージ", status: http.StatusInternalServerError, body: `{"message":42}`, wantMessage: "予約一覧の取得に失敗しました。"},
		{name: "成功レスポンスのボディが不正", status: http.StatusOK, body: `{"id":`, wantMessage: "予約一覧の取得に失敗しました。"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := newFakeAPI(t, tt.status, tt.body)

			_, err := c.List(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRequestFailed))
			assert.False(t, errors.Is(err, ErrTransport))

			var reqErr *RequestError
			require.True(t, errors.As(err, &reqErr))
			assert.Equal(t, tt.status, reqErr.StatusCode)
			assert.Equal(t, tt.wantMessage, reqErr.Message)
			assert.Equal(t, tt.wantServer, reqErr.FromServer)
			assert.Equal(t, tt.wantMessage, DisplayMessage(err))
		})
	}
}

func TestReservationClient_Create(t *testing.T) {
	body := `{"id":"r1","name":"Kim","date":"2099-01-01","time":"18:00","partySize":4,"status":"PENDING","createdAt":"2099-01-01T10:00:00Z"}`
	f, c := newFakeAPI(t, http.StatusCreated, body)

	got, err := c.Create(context.Background(), model.CreateRequest{Name: "Kim", Date: "2099-01-01", Time: "18:00", PartySize: 4})
	require.NoError(t, err)

	assert.Equal(t, model.Reservation{
		ID:           "r1",
		CustomerName: "Kim",
		ReservedAt:   time.Date(2099, 1, 1, 18, 0, 0, 0, time.UTC),
		PartySize:    4,
		Status:       model.StatusPending,
		CreatedAt:    time.Date(2099, 1, 1, 10, 0, 0, 0, time.UTC),
	}, got)

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, `{"name":"Kim","date":"2099-01-01","time":"18:00","partySize":4}`, reqs[0].Body)
	assert.Equal(t, "application/json", reqs[0].Header.Get("Content-Type"))
	assert.Equal(t, "application/json", reqs[0].Header.Get("Accept"))
}

func TestReservationClient_StatusTransitions(t *testing.T) {
	tests := []struct {
		name         string
		call         func(c *ReservationClientImpl, id string) error
		id           string
		status       int
		body         string
		wantPath     string
		wantErr      bool
		wantFallback string
	}{
		{
			name:     "承認に成功",
			call:     func(c *ReservationClientImpl, id string) error { return c.Approve(context.Background(), id) },
			id:       "r1",
			status:   http.StatusNoContent,
			wantPath: "/api/reservations/r1/approve",
		},
		{
			name:     "キャンセルに成功",
			call:     func(c *ReservationClientImpl, id string) error { return c.Cancel(context.Background(), id) },
			id:       "r1",
			status:   http.StatusOK,
			wantPath: "/api/reservations/r1/cancel",
		},
		{
			name:         "キャンセル済み予約の承認をサーバーが拒否",
			call:         func(c *ReservationClientImpl, id string) error { return c.Approve(context.Background(), id) },
			id:           "r1",
			status:       http.StatusConflict,
			wantPath:     "/api/reservations/r1/approve",
			wantErr:      true,
			wantFallback: "予約の承認に失敗しました。",
		},
		{
			name:         "キャンセルの失敗",
			call:         func(c *ReservationClientImpl, id string) error { return c.Cancel(context.Background(), id) },
			id:           "r1",
			status:       http.StatusInternalServerError,
			body:         "not json",
			wantPath:     "/api/reservations/r1/cancel",
			wantErr:      true,
			wantFallback: "予約のキャンセルに失敗しました。",
		},
		{
			name:     "IDはパスエスケープされる",
			call:     func(c *ReservationClientImpl, id string) error { return c.Approve(context.Background(), id) },
			id:       "a b",
			status:   http.StatusOK,
			wantPath: "/api/reservations/a%20b/approve",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c := newFakeAPI(t, tt.status, tt.body)

			err := tt.call(c, tt.id)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrRequestFailed))
				assert.Equal(t, tt.wantFallback, DisplayMessage(err))
			} else {
				require.NoError(t, err)
			}

			reqs := f.recorded()
			require.Len(t, reqs, 1)
			assert.Equal(t, http.MethodPatch, reqs[0].Method)
			assert.Equal(t, tt.wantPath, reqs[0].Path)
			assert.Equal(t, "application/json", reqs[0].Header.Get("Accept"))
			assert.Empty(t, reqs[0].Body)
		})
	}
}

func TestFallbackMessagesAreDistinct(t *testing.T) {
	seen := map[string]Operation{}
	for _, op := range []Operation{OpList, OpCreate, OpApprove, OpCancel} {
		msg := FallbackMessage(op)
		require.NotEmpty(t, msg)
		if prev, ok := seen[msg]; ok {
			t.Errorf("fallback message of %s duplicates %s", op, prev)
		}
		seen[msg] = op
	}
}

func TestReservationClient_TransportFailure(t *testing.T) {
	// 接続先のないサーバーに対するリクエスト
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	h, err := NewHTTP(HTTPConfig{BaseURL: baseURL, Timeout: time.Second})
	require.NoError(t, err)
	c := NewReservationClient(h)

	_, err = c.List(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.False(t, errors.Is(err, ErrRequestFailed))
	assert.Equal(t, TransportMessage, DisplayMessage(err))
}

func TestReservationClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	h, err := NewHTTP(HTTPConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	c := NewReservationClient(h)

	err = c.Approve(context.Background(), "r1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewHTTP(t *testing.T) {
	h, err := NewHTTP(HTTPConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, h.BaseURL())
	assert.Equal(t, time.Local, h.Location())

	h, err = NewHTTP(HTTPConfig{BaseURL: "https://api.example.com///"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", h.BaseURL())

	_, err = NewHTTP(HTTPConfig{BaseURL: "ftp://api.example.com"})
	assert.Error(t, err)
}
