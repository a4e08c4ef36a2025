package transport

import (
	"context"
	"sync"

	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
)

// inMemoryTransport connects two peers through buffered Go channels. It
// exists so the protocol engine, plugins, and the task subsystem can be
// exercised end-to-end in tests without a real stdio or SSE channel.
type inMemoryTransport struct {
	out chan<- *inMemoryEnvelope
	in  <-chan *inMemoryEnvelope

	mu             sync.RWMutex
	messageHandler func(*jsonrpc.Message, *Extra)
	closeHandler   func()
	errorHandler   func(error)

	closeOnce sync.Once
	closed    chan struct{}
	sessionID string
}

type inMemoryEnvelope struct {
	msg   *jsonrpc.Message
	extra *Extra
}

// NewInMemoryTransports returns a connected client/server transport pair.
func NewInMemoryTransports(sessionID string) (client Transport, server Transport) {
	c2s := make(chan *inMemoryEnvelope, 64)
	s2c := make(chan *inMemoryEnvelope, 64)

	client = &inMemoryTransport{out: c2s, in: s2c, closed: make(chan struct{}), sessionID: sessionID}
	server = &inMemoryTransport{out: s2c, in: c2s, closed: make(chan struct{}), sessionID: sessionID}
	return client, server
}

func (t *inMemoryTransport) Start(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-t.closed:
				return
			case <-ctx.Done():
				return
			case env, ok := <-t.in:
				if !ok {
					t.Close()
					return
				}
				t.mu.RLock()
				h := t.messageHandler
				t.mu.RUnlock()
				if h != nil {
					h(env.msg, env.extra)
				}
			}
		}
	}()
	return nil
}

func (t *inMemoryTransport) Send(ctx context.Context, msg *jsonrpc.Message, opts *SendOptions) error {
	var extra *Extra
	if opts != nil && opts.RelatedRequestID != nil {
		extra = &Extra{RelatedRequestID: opts.RelatedRequestID}
	}
	select {
	case <-t.closed:
		return errClosed
	case t.out <- &inMemoryEnvelope{msg: msg, extra: extra}:
		return nil
	}
}

func (t *inMemoryTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.mu.RLock()
		h := t.closeHandler
		t.mu.RUnlock()
		if h != nil {
			h()
		}
	})
	return nil
}

func (t *inMemoryTransport) SetMessageHandler(h func(*jsonrpc.Message, *Extra)) {
	t.mu.Lock()
	t.messageHandler = h
	t.mu.Unlock()
}

func (t *inMemoryTransport) SetCloseHandler(h func()) {
	t.mu.Lock()
	t.closeHandler = h
	t.mu.Unlock()
}

func (t *inMemoryTransport) SetErrorHandler(h func(error)) {
	t.mu.Lock()
	t.errorHandler = h
	t.mu.Unlock()
}

func (t *inMemoryTransport) SessionID() (string, bool) { return t.sessionID, t.sessionID != "" }

var errClosed = &closedError{}

type closedError struct{}

func (*closedError) Error() string { return "transport: closed" }
