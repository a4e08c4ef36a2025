// Package plugin defines the engine-extension contract. A plugin has a
// stable name, optional priority, optional lifecycle hooks, message-routing
// gates, and per-message hooks; the engine (internal/protocol) owns each
// installed plugin and sorts them by priority as they are installed, running
// same-priority plugins in registration order. Plugins never hold the
// engine directly, only the narrow Context view below, so there is no
// plugin<->engine reference cycle.
package plugin

import (
	"context"
	"encoding/json"

	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
)

// Direction distinguishes outgoing requests/notifications (sent by this
// peer) from incoming ones (received from the peer).
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

// HookResult lets a hook replace the value it was given, or pass through
// untouched by returning (nil, nil).
type HookResult struct {
	// Request, when non-nil, replaces the outgoing/incoming request.
	Request *jsonrpc.Request
	// Notification, when non-nil, replaces the outgoing/incoming notification.
	Notification *jsonrpc.Notification
	// Result, when non-nil, replaces a successful handler result (raw JSON).
	Result json.RawMessage
	// Err, when non-nil, replaces/supplies an error.
	Err error
	// Routed, when true, tells the engine this hook fully handled the
	// message (e.g. queued it as a task side-channel message) and the
	// engine must not perform its normal send/dispatch for it.
	Routed bool
}

// HandlerContext is the per-dispatch context threaded through incoming
// request handling, built fresh for every request and contributed to by
// plugin.OnBuildHandlerContext hooks (the task subsystem attaches its
// task.Context here).
type HandlerContext struct {
	context.Context

	SessionID string
	RequestID jsonrpc.RequestID

	// Send lets a handler emit requests/notifications back to the peer
	// while it runs. Inside a task context the task subsystem swaps this
	// for its queueing sender, so the traffic rides the tasks/result
	// long-poll instead of the (long-gone) original request.
	Send Sender

	// Values holds contributions from OnBuildHandlerContext hooks, keyed
	// by a package-scoped type to avoid collisions (the same convention
	// context.Context itself uses).
	Values map[interface{}]interface{}
}

// Value looks up a contribution made by some plugin's OnBuildHandlerContext hook.
func (h *HandlerContext) Value(key interface{}) interface{} {
	if h.Values == nil {
		return nil
	}
	return h.Values[key]
}

// Plugin is installed on the engine before Connect and participates in
// every message's lifecycle through the hooks below.
type Plugin interface {
	// Name is a stable identifier used for diagnostics and dedup.
	Name() string

	// Priority orders plugin execution; higher runs first. Ties break by
	// registration order. Default 0.
	Priority() int

	// Install is called once, at registration time (before Connect). A
	// plugin may register request/notification handlers on the context's
	// Handlers() view. Re-installation is forbidden by the engine.
	Install(ctx Context) error

	// OnConnect is invoked once the engine has attached to a transport.
	OnConnect(ctx Context, transportSessionID string)

	// OnClose is invoked when the engine is shutting down.
	OnClose(ctx Context)

	// ShouldRouteMessage/RouteMessage implement message-interception:
	// the engine runs ShouldRouteMessage for each plugin in priority
	// order on every outgoing request and stops at the first "true"
	// (first-match-wins), calling that plugin's RouteMessage instead of
	// its normal send path.
	ShouldRouteMessage(req *jsonrpc.Request, opts RequestOptions) bool
	RouteMessage(ctx Context, req *jsonrpc.Request, opts RequestOptions) (json.RawMessage, error)

	// Per-message hooks. Each receives an immutable view of the message
	// and may return a replacement via HookResult, or a zero HookResult
	// for pass-through.
	OnBeforeSendRequest(ctx Context, req *jsonrpc.Request, opts RequestOptions) HookResult
	OnBeforeSendNotification(ctx Context, notif *jsonrpc.Notification, opts RequestOptions) HookResult
	OnRequest(ctx Context, req *jsonrpc.Request) HookResult
	OnRequestResult(ctx Context, req *jsonrpc.Request, result json.RawMessage) HookResult
	OnRequestError(ctx Context, req *jsonrpc.Request, err error) HookResult
	OnResponse(ctx Context, req *jsonrpc.Request, result json.RawMessage) HookResult
	OnNotification(ctx Context, notif *jsonrpc.Notification) HookResult
	OnBuildHandlerContext(ctx Context, hctx *HandlerContext, req *jsonrpc.Request)
}

// RequestOptions is the narrow view of protocol.RequestOptions a plugin
// needs; it avoids an import cycle between plugin and the engine package
// while letting the task/middleware subsystems inspect per-call options.
type RequestOptions struct {
	Task        *TaskOptions
	RelatedTask *TaskRef
}

// TaskOptions mirrors the wire-level params.task field for requests that
// should be executed as a server-side task.
type TaskOptions struct {
	TTLMillis *int64
}

// TaskRef mirrors the reserved mcp/relatedTask meta tag.
type TaskRef struct {
	TaskID string
}
