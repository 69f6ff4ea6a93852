package client

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/google/uuid"
)

const (
	// DefaultBaseURL は予約APIのデフォルトの接続先です
	DefaultBaseURL = "http://localhost:8080"
	// DefaultTimeout は1リクエストあたりのデフォルトのタイムアウトです
	DefaultTimeout = 10 * time.Second
)

// HTTPConfig は予約APIへの接続設定です
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	// Location はタイムゾーンを持たない日時(LocalDateTime)を解釈するためのタイムゾーンです
	Location *time.Location
}

// HTTP は予約APIへのHTTP接続を表します
type HTTP struct {
	*http.Client
	baseURL  *url.URL
	timeout  time.Duration
	location *time.Location
}

// NewHTTP は新しいHTTP接続を作成します
// 送信するリクエストはX-Rayのサブセグメントとして記録されます
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	raw := strings.TrimRight(cfg.BaseURL, "/")
	if raw == "" {
		raw = DefaultBaseURL
	}

	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url %q: %w", raw, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme %q", base.Scheme)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	return &HTTP{
		Client:   xray.Client(&http.Client{}),
		baseURL:  base,
		timeout:  timeout,
		location: loc,
	}, nil
}

// BaseURL は接続先のベースURLを返します
func (h *HTTP) BaseURL() string {
	return h.baseURL.String()
}

// Location は日時の解釈に使うタイムゾーンを返します
func (h *HTTP) Location() *time.Location {
	return h.location
}

// response はボディを読み込み済みのレスポンスです
type response struct {
	StatusCode int
	Body       []byte
}

func (r *response) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// do はベースURLからの相対パスにリクエストを送信し、ボディを読み込んで返します
// レスポンスを受け取れなかった場合のみエラーを返します
func (h *HTTP) do(ctx context.Context, method, path string, body io.Reader, header http.Header) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	startTime := time.Now()
	resp, err := h.Client.Do(req)
	if err != nil {
		log.Printf("%s %s failed: request_id=%s err=%v", method, path, requestID, err)
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		// ステータスは受け取れているのでボディなしとして扱う
		log.Printf("Failed to read response body: request_id=%s err=%v", requestID, err)
		b = nil
	}

	log.Printf("%s %s -> %d (%v) request_id=%s", method, path, resp.StatusCode, time.Since(startTime), requestID)
	return &response{StatusCode: resp.StatusCode, Body: b}, nil
}
