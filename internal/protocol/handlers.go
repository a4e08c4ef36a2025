package protocol

import (
	"context"
	"sync"

	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
	"github.com/metoro-io/mcp-runtime-go/plugin"
)

// HandlerContext is the plugin package's per-dispatch context, aliased
// here so engine code (and callers building RequestHandlers) can spell
// it without importing plugin directly.
type HandlerContext = plugin.HandlerContext

// RequestHandler processes an incoming request and returns a result to be
// marshaled into the response, or an error to be turned into a JSON-RPC
// error response.
type RequestHandler func(ctx *HandlerContext, req *jsonrpc.Request) (interface{}, error)

// NotificationHandler processes an incoming notification. Errors are
// reported via OnError only; notifications never produce a response.
type NotificationHandler func(ctx context.Context, notif *jsonrpc.Notification) error

// handlerRegistry pairs the method->handler maps with the table of
// in-flight per-request cancellation functions, so the Protocol engine
// composes it instead of owning the maps directly.
type handlerRegistry struct {
	mu sync.RWMutex

	requestHandlers      map[string]RequestHandler
	notificationHandlers map[string]NotificationHandler
	cancellers           map[string]context.CancelFunc

	fallbackRequest      RequestHandler
	fallbackNotification NotificationHandler
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{
		requestHandlers:      make(map[string]RequestHandler),
		notificationHandlers: make(map[string]NotificationHandler),
		cancellers:           make(map[string]context.CancelFunc),
	}
}

func (r *handlerRegistry) setRequestHandler(method string, h RequestHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestHandlers[method] = h
}

func (r *handlerRegistry) removeRequestHandler(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requestHandlers, method)
}

func (r *handlerRegistry) setNotificationHandler(method string, h NotificationHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notificationHandlers[method] = h
}

func (r *handlerRegistry) removeNotificationHandler(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.notificationHandlers, method)
}

func (r *handlerRegistry) requestHandler(method string) (RequestHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.requestHandlers[method]; ok {
		return h, true
	}
	if r.fallbackRequest != nil {
		return r.fallbackRequest, true
	}
	return nil, false
}

func (r *handlerRegistry) notificationHandler(method string) (NotificationHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.notificationHandlers[method]; ok {
		return h, true
	}
	if r.fallbackNotification != nil {
		return r.fallbackNotification, true
	}
	return nil, false
}

func (r *handlerRegistry) registerCanceller(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancellers[id] = cancel
}

func (r *handlerRegistry) clearCanceller(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancellers, id)
}

func (r *handlerRegistry) cancel(id string) bool {
	r.mu.RLock()
	cancel, ok := r.cancellers[id]
	r.mu.RUnlock()
	if ok {
		cancel()
	}
	return ok
}

// abortAllPendingRequests cancels every in-flight handler's context.
// Idempotent: a second call finds an empty table and does nothing.
func (r *handlerRegistry) abortAllPendingRequests() {
	r.mu.Lock()
	cancellers := r.cancellers
	r.cancellers = make(map[string]context.CancelFunc)
	r.mu.Unlock()

	for _, cancel := range cancellers {
		cancel()
	}
}
