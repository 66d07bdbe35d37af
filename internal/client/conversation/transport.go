package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/other-side/backend/pkg/utils"
)

const maxReplyBytes = 1 << 20

// Transport carries one request envelope to the dialogue endpoint and decodes
// the success body into out.
type Transport interface {
	Send(ctx context.Context, req any, out any) error
	Close() error
}

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func statusError(status int, body []byte) error {
	var payload utils.ErrorBody
	_ = json.Unmarshal(body, &payload)
	return &StatusError{Status: status, Message: payload.Error}
}

// HTTPTransport posts each envelope to a single URL.
type HTTPTransport struct {
	URL    string
	Client *http.Client
}

// NewHTTPTransport 创建HTTP传输，client 为 nil 时使用 30 秒超时的默认客户端
func NewHTTPTransport(url string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTransport{URL: url, Client: client}
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, req any, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post %s: %w", t.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

// Close implements Transport.
func (t *HTTPTransport) Close() error {
	t.Client.CloseIdleConnections()
	return nil
}

// WSTransport keeps one WebSocket open and exchanges one frame per request.
// The connection is dialled on first use and redialled after a failure.
type WSTransport struct {
	URL          string
	WriteTimeout time.Duration
	ReadTimeout  time.Duration

	dialer *websocket.Dialer
	mu     sync.Mutex
	conn   *websocket.Conn
}

type socketReply struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// NewWSTransport 创建WebSocket传输。url 可以是 http(s):// 或 ws(s):// 形式。
func NewWSTransport(url string) *WSTransport {
	return &WSTransport{
		URL:          toWebSocketURL(url),
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  60 * time.Second,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
	}
}

func toWebSocketURL(url string) string {
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}

// Send implements Transport. Requests are serialised over the one connection.
func (t *WSTransport) Send(ctx context.Context, req any, out any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		conn, _, err := t.dialer.DialContext(ctx, t.URL, nil)
		if err != nil {
			return fmt.Errorf("websocket dial failed: %w", err)
		}
		t.conn = conn
	}

	reply, err := t.exchange(ctx, req)
	if err != nil {
		t.conn.Close()
		t.conn = nil
		return err
	}

	if reply.Status < 200 || reply.Status > 299 {
		return statusError(reply.Status, reply.Body)
	}
	if err := json.Unmarshal(reply.Body, out); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

func (t *WSTransport) exchange(ctx context.Context, req any) (socketReply, error) {
	var reply socketReply

	deadline := time.Now().Add(t.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteJSON(req); err != nil {
		return reply, fmt.Errorf("websocket write failed: %w", err)
	}

	deadline = time.Now().Add(t.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	t.conn.SetReadDeadline(deadline)

	// 读取期间响应上下文取消
	done := make(chan struct{})
	defer close(done)
	go func(conn *websocket.Conn) {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}(t.conn)

	if err := t.conn.ReadJSON(&reply); err != nil {
		if ctx.Err() != nil {
			return reply, ctx.Err()
		}
		return reply, fmt.Errorf("websocket read failed: %w", err)
	}
	return reply, nil
}

// Close implements Transport.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := t.conn.Close()
	t.conn = nil
	return err
}
