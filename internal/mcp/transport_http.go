package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// HTTPTransport implements the MCP HTTP/SSE transport: requests POST to
// the configured URL, server-initiated traffic arrives on an SSE stream.
type HTTPTransport struct {
	config *ServerConfig
	logger *slog.Logger
	client *http.Client

	events    chan *JSONRPCNotification
	requests  chan *JSONRPCRequest
	connected atomic.Bool
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewHTTPTransport creates a new HTTP transport.
func NewHTTPTransport(cfg *ServerConfig) *HTTPTransport {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPTransport{
		config: cfg,
		logger: slog.Default().With("mcp_server", cfg.ID, "transport", "http"),
		client: &http.Client{
			Timeout: timeout,
		},
		events:   make(chan *JSONRPCNotification, 100),
		requests: make(chan *JSONRPCRequest, 100),
		stopChan: make(chan struct{}),
	}
}

// Connect establishes the HTTP connection. The initialize handshake is the
// client's job; this only starts the SSE listener.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("URL is required for HTTP transport")
	}

	t.connected.Store(true)
	t.logger.Info("HTTP transport ready", "url", t.config.URL)

	t.wg.Add(1)
	go t.sseLoop(ctx)

	return nil
}

// Close closes the HTTP connection. Safe to call more than once.
func (t *HTTPTransport) Close() error {
	t.connected.Store(false)
	t.stopOnce.Do(func() { close(t.stopChan) })
	t.wg.Wait()
	return nil
}

// post marshals payload and POSTs it as one JSON frame, returning the raw
// response body. Every outbound path funnels through here so the header
// set stays consistent.
func (t *HTTPTransport) post(ctx context.Context, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", t.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.config.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}
	return io.ReadAll(resp.Body)
}

// Call sends a request and waits for a response.
func (t *HTTPTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("not connected")
	}

	req := JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      uuid.New().String(),
		Method:  method,
	}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = paramsJSON
	}

	body, err := t.post(ctx, req)
	if err != nil {
		return nil, err
	}

	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("MCP error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

// Notify sends a notification (no response expected).
func (t *HTTPTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}

	notif := JSONRPCNotification{
		JSONRPC: "2.0",
		Method:  method,
	}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = paramsJSON
	}

	_, err := t.post(ctx, notif)
	return err
}

// Events returns the notification channel.
func (t *HTTPTransport) Events() <-chan *JSONRPCNotification {
	return t.events
}

// Requests returns the request channel.
func (t *HTTPTransport) Requests() <-chan *JSONRPCRequest {
	return t.requests
}

// Respond sends a response to a server-initiated request.
func (t *HTTPTransport) Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}

	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   rpcErr,
	}
	if rpcErr == nil && result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resp.Result = data
	}

	_, err := t.post(ctx, resp)
	return err
}

// Connected returns whether the transport is connected.
func (t *HTTPTransport) Connected() bool {
	return t.connected.Load()
}

// sseLoop keeps one SSE connection to <url>/sse alive, reconnecting with
// a fixed backoff until the transport stops.
func (t *HTTPTransport) sseLoop(ctx context.Context) {
	defer t.wg.Done()

	sseURL := strings.TrimSuffix(t.config.URL, "/") + "/sse"

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopChan:
			return
		default:
		}

		t.connectSSE(ctx, sseURL)

		select {
		case <-ctx.Done():
			return
		case <-t.stopChan:
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// connectSSE establishes one SSE connection and pumps its frames until it
// drops. Responses to our own calls never arrive here (they come back on
// the POST), so every frame is either a server request or a notification.
func (t *HTTPTransport) connectSSE(ctx context.Context, sseURL string) {
	req, err := http.NewRequestWithContext(ctx, "GET", sseURL, nil)
	if err != nil {
		t.logger.Debug("failed to create SSE request", "error", err)
		return
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Debug("SSE connection failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.logger.Debug("SSE returned non-200", "status", resp.StatusCode)
		return
	}

	t.logger.Debug("SSE connected", "url", sseURL)

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-t.stopChan:
			return
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		t.processSSEData(strings.TrimPrefix(line, "data: "))
	}

	if err := scanner.Err(); err != nil {
		t.logger.Debug("SSE scanner error", "error", err)
	}
}

func (t *HTTPTransport) processSSEData(data string) {
	var envelope struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      any             `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
	}
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		t.logger.Warn("malformed SSE frame ignored", "error", err)
		return
	}
	if envelope.Method == "" {
		return
	}

	if envelope.ID != nil {
		req := &JSONRPCRequest{
			JSONRPC: envelope.JSONRPC,
			ID:      envelope.ID,
			Method:  envelope.Method,
			Params:  envelope.Params,
		}
		select {
		case t.requests <- req:
		default:
			t.logger.Warn("request channel full, dropping")
		}
		return
	}

	notif := &JSONRPCNotification{
		JSONRPC: envelope.JSONRPC,
		Method:  envelope.Method,
		Params:  envelope.Params,
	}
	select {
	case t.events <- notif:
	default:
		t.logger.Warn("notification channel full, dropping")
	}
}
