package protocol

import (
	"context"
	"sync"

	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
	"github.com/metoro-io/mcp-runtime-go/transport"
)

// mockTransport implements transport.Transport for testing: it records
// every Send and lets tests inject inbound messages and errors.
type mockTransport struct {
	mu sync.RWMutex

	onClose   func()
	onError   func(error)
	onMessage func(msg *jsonrpc.Message, extra *transport.Extra)

	messages []*jsonrpc.Message
	closed   bool
	started  bool
}

func newMockTransport() *mockTransport {
	return &mockTransport{messages: make([]*jsonrpc.Message, 0)}
}

func (t *mockTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	t.started = true
	t.mu.Unlock()
	return nil
}

func (t *mockTransport) Send(ctx context.Context, msg *jsonrpc.Message, opts *transport.SendOptions) error {
	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()
	return nil
}

func (t *mockTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	handler := t.onClose
	t.mu.Unlock()
	if handler != nil {
		handler()
	}
	return nil
}

func (t *mockTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	t.onClose = handler
	t.mu.Unlock()
}

func (t *mockTransport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	t.onError = handler
	t.mu.Unlock()
}

func (t *mockTransport) SetMessageHandler(handler func(msg *jsonrpc.Message, extra *transport.Extra)) {
	t.mu.Lock()
	t.onMessage = handler
	t.mu.Unlock()
}

func (t *mockTransport) SessionID() (string, bool) { return "mock-session", true }

func (t *mockTransport) simulateMessage(msg *jsonrpc.Message) {
	t.mu.RLock()
	handler := t.onMessage
	t.mu.RUnlock()
	if handler != nil {
		handler(msg, &transport.Extra{})
	}
}

func (t *mockTransport) simulateError(err error) {
	t.mu.RLock()
	handler := t.onError
	t.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}

func (t *mockTransport) getMessages() []*jsonrpc.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	msgs := make([]*jsonrpc.Message, len(t.messages))
	copy(msgs, t.messages)
	return msgs
}

func (t *mockTransport) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

func (t *mockTransport) isStarted() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.started
}
