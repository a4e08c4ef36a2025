// Package middleware implements the onion-model protocol-level middleware
// chains: universal, outgoing, incoming, and operation-scoped
// (toolCall/resourceRead/sampling/elicitation) stages wrapped around every
// message the engine sends or dispatches. The chaining idiom is the same
// one http.Handler wrappers use (a base handler progressively wrapped by
// cross-cutting concerns) applied to JSON-RPC method dispatch. Manager
// implements internal/protocol.Middleware so the engine can drive it
// without importing this package.
package middleware

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// OutgoingNext is the remaining outgoing chain, called at most once.
type OutgoingNext func(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)

// OutgoingFunc transforms a method's outgoing params before it is framed
// and sent. Implementations must call next exactly once, the way an
// http.Handler middleware calls its wrapped handler.
type OutgoingFunc func(ctx context.Context, method string, params json.RawMessage, next OutgoingNext) (json.RawMessage, error)

// IncomingNext is the remaining incoming chain (eventually the handler
// itself), called at most once.
type IncomingNext func() (interface{}, error)

// IncomingFunc wraps the invocation of an incoming request's handler.
// Implementations must call next exactly once.
type IncomingFunc func(ctx context.Context, method string, params json.RawMessage, next IncomingNext) (interface{}, error)

// Operation names an operation-scoped chain.
type Operation string

const (
	OperationToolCall      Operation = "toolCall"
	OperationResourceRead  Operation = "resourceRead"
	OperationSampling      Operation = "sampling"
	OperationElicitation   Operation = "elicitation"
)

// operationMethods maps a wire method name to the operation-scoped chain it
// runs through, in addition to the universal outgoing/incoming chains.
var operationMethods = map[string]Operation{
	"tools/call":             OperationToolCall,
	"resources/read":         OperationResourceRead,
	"sampling/createMessage": OperationSampling,
	"elicitation/create":     OperationElicitation,
}

// Manager is the shared implementation behind ClientMiddlewareManager and
// ServerMiddlewareManager: a set of named chains that freeze once the
// engine connects.
type Manager struct {
	mu       sync.Mutex
	frozen   bool
	outgoing []OutgoingFunc
	incoming []IncomingFunc
	byOp     map[Operation][]IncomingFunc
}

// NewManager builds an empty Manager.
func NewManager() *Manager {
	return &Manager{byOp: make(map[Operation][]IncomingFunc)}
}

// Use registers a universal outgoing+incoming middleware pair. Either may
// be nil to participate in only one direction.
func (m *Manager) Use(out OutgoingFunc, in IncomingFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return errors.New("Cannot register middleware after the server has started")
	}
	if out != nil {
		m.outgoing = append(m.outgoing, out)
	}
	if in != nil {
		m.incoming = append(m.incoming, in)
	}
	return nil
}

// UseOutgoing registers an outgoing-only middleware.
func (m *Manager) UseOutgoing(out OutgoingFunc) error { return m.Use(out, nil) }

// UseIncoming registers an incoming-only middleware.
func (m *Manager) UseIncoming(in IncomingFunc) error { return m.Use(nil, in) }

// UseOperation registers a middleware scoped to a single operation, run
// after the universal incoming chain and before the handler.
func (m *Manager) UseOperation(op Operation, in IncomingFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return errors.New("Cannot register middleware after the server has started")
	}
	m.byOp[op] = append(m.byOp[op], in)
	return nil
}

// Freeze stops further registration. Called by mcp.Client.Connect and
// mcp.Server.Connect.
func (m *Manager) Freeze() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen = true
}

func (m *Manager) snapshot() ([]OutgoingFunc, []IncomingFunc, map[Operation][]IncomingFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]OutgoingFunc(nil), m.outgoing...)
	in := append([]IncomingFunc(nil), m.incoming...)
	byOp := make(map[Operation][]IncomingFunc, len(m.byOp))
	for op, fns := range m.byOp {
		byOp[op] = append([]IncomingFunc(nil), fns...)
	}
	return out, in, byOp
}

// WrapOutgoing implements internal/protocol.Middleware: the first
// registered middleware is outermost, each one's next is the remainder of
// the chain, terminating in a pass-through identity call.
func (m *Manager) WrapOutgoing(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	out, _, _ := m.snapshot()
	return runOutgoing(ctx, out, method, params)
}

func runOutgoing(ctx context.Context, chain []OutgoingFunc, method string, params json.RawMessage) (json.RawMessage, error) {
	if len(chain) == 0 {
		return params, nil
	}
	var calls int32
	next := func(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
		calls++
		if calls > 1 {
			return nil, errors.Errorf("next() called multiple times in outgoing chain for %q", method)
		}
		return runOutgoing(ctx, chain[1:], method, params)
	}
	return chain[0](ctx, method, params, next)
}

// WrapIncoming implements internal/protocol.Middleware. The universal
// chain runs first (outermost), then any operation-scoped chain for
// method, then the handler itself at the center.
func (m *Manager) WrapIncoming(ctx context.Context, method string, params json.RawMessage, handler func() (interface{}, error)) (interface{}, error) {
	_, universal, byOp := m.snapshot()

	chain := append([]IncomingFunc(nil), universal...)
	if op, ok := operationMethods[method]; ok {
		chain = append(chain, byOp[op]...)
	}

	return runIncoming(ctx, chain, method, params, handler)
}

func runIncoming(ctx context.Context, chain []IncomingFunc, method string, params json.RawMessage, handler func() (interface{}, error)) (interface{}, error) {
	if len(chain) == 0 {
		return handler()
	}
	var calls int32
	next := func() (interface{}, error) {
		calls++
		if calls > 1 {
			return nil, errors.Errorf("next() called multiple times in chain for %q", method)
		}
		return runIncoming(ctx, chain[1:], method, params, handler)
	}
	return chain[0](ctx, method, params, next)
}

// ClientMiddlewareManager and ServerMiddlewareManager share Manager's
// implementation but are distinguished at the type level so client/server
// wiring code cannot accidentally swap one for the other.
type ClientMiddlewareManager struct{ *Manager }

// NewClientMiddlewareManager builds an empty client-side chain set.
func NewClientMiddlewareManager() *ClientMiddlewareManager {
	return &ClientMiddlewareManager{NewManager()}
}

type ServerMiddlewareManager struct{ *Manager }

// NewServerMiddlewareManager builds an empty server-side chain set.
func NewServerMiddlewareManager() *ServerMiddlewareManager {
	return &ServerMiddlewareManager{NewManager()}
}
