// Package sse implements the server-sent-events Transport: the server
// streams JSON-RPC messages to the client over a long-lived SSE
// connection, and receives client-to-server messages via HTTP POST to a
// companion endpoint advertised in the stream's first event.
package sse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
	"github.com/metoro-io/mcp-runtime-go/transport"
)

// MaxMessageSize bounds a single POSTed JSON-RPC frame.
const MaxMessageSize = 4 * 1024 * 1024 // 4MB

// ServerTransport is the server side of the SSE transport: it streams
// messages to one connected client over w, and accepts client-to-server
// POSTs via HandlePostMessage.
type ServerTransport struct {
	endpoint  string
	sessionID string
	writer    http.ResponseWriter
	flusher   http.Flusher

	mu          sync.Mutex
	isConnected bool

	messageHandler func(*jsonrpc.Message, *transport.Extra)
	closeHandler   func()
	errorHandler   func(error)
}

// NewServerTransport creates an SSE server transport bound to one HTTP
// response writer. endpoint is advertised to the client as the URL to POST
// subsequent messages to.
func NewServerTransport(endpoint string, w http.ResponseWriter) (*ServerTransport, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("sse: response writer does not support streaming")
	}
	return &ServerTransport{
		endpoint:  endpoint,
		sessionID: uuid.New().String(),
		writer:    w,
		flusher:   flusher,
	}, nil
}

func (t *ServerTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.isConnected {
		return fmt.Errorf("sse: transport already started")
	}

	h := t.writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")

	endpointURL := fmt.Sprintf("%s?sessionId=%s", t.endpoint, t.sessionID)
	if err := t.writeEventLocked("endpoint", endpointURL); err != nil {
		return err
	}

	t.isConnected = true
	return nil
}

// HandlePostMessage parses an inbound client-to-server POST body and
// dispatches it to the registered message handler.
func (t *ServerTransport) HandlePostMessage(r *http.Request) error {
	if r.Method != http.MethodPost {
		return fmt.Errorf("sse: method not allowed: %s", r.Method)
	}
	if ct := r.Header.Get("Content-Type"); ct != "application/json" {
		return fmt.Errorf("sse: unsupported content type: %s", ct)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxMessageSize))
	if err != nil {
		return fmt.Errorf("sse: failed to read request body: %w", err)
	}
	defer r.Body.Close()

	msg, err := jsonrpc.Decode(body)
	if err != nil {
		t.reportError(err)
		return err
	}

	t.mu.Lock()
	handler := t.messageHandler
	t.mu.Unlock()
	if handler != nil {
		handler(msg, nil)
	}
	return nil
}

func (t *ServerTransport) Send(_ context.Context, msg *jsonrpc.Message, opts *transport.SendOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.isConnected {
		return fmt.Errorf("sse: not connected")
	}

	data, err := jsonrpc.Encode(msg)
	if err != nil {
		return err
	}
	return t.writeEventLocked("message", string(data))
}

func (t *ServerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.isConnected {
		return nil
	}
	t.isConnected = false

	if t.closeHandler != nil {
		t.closeHandler()
	}
	return nil
}

func (t *ServerTransport) SetMessageHandler(h func(*jsonrpc.Message, *transport.Extra)) {
	t.mu.Lock()
	t.messageHandler = h
	t.mu.Unlock()
}

func (t *ServerTransport) SetCloseHandler(h func()) {
	t.mu.Lock()
	t.closeHandler = h
	t.mu.Unlock()
}

func (t *ServerTransport) SetErrorHandler(h func(error)) {
	t.mu.Lock()
	t.errorHandler = h
	t.mu.Unlock()
}

func (t *ServerTransport) SessionID() (string, bool) { return t.sessionID, true }

func (t *ServerTransport) reportError(err error) {
	t.mu.Lock()
	handler := t.errorHandler
	t.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

// writeEvent acquires the lock and writes one SSE frame.
func (t *ServerTransport) writeEvent(event, data string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeEventLocked(event, data)
}

// writeEventLocked writes one SSE frame; caller must hold t.mu.
func (t *ServerTransport) writeEventLocked(event, data string) error {
	if _, err := fmt.Fprintf(t.writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}
