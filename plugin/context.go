package plugin

import (
	"context"
	"encoding/json"

	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
)

// Sender is the narrow view of the engine's outbound path a plugin needs
// to emit side-channel messages (e.g. the task subsystem queuing a
// server-initiated request instead of writing it to the transport).
type Sender interface {
	SendRequest(ctx context.Context, method string, params interface{}, opts RequestOptions) (json.RawMessage, error)
	SendNotification(ctx context.Context, method string, params interface{}, opts RequestOptions) error
}

// Handlers is the narrow view of the HandlerRegistry a plugin's Install
// hook may use to register request/notification handlers.
type Handlers interface {
	SetRequestHandler(method string, h func(context.Context, *jsonrpc.Request) (interface{}, error))
	SetNotificationHandler(method string, h func(context.Context, *jsonrpc.Notification) error)
	RemoveRequestHandler(method string)
	RemoveNotificationHandler(method string)
}

// Resolvers is the narrow view letting the task subsystem settle a
// previously-registered outgoing-request waiter out of band (used when a
// queued side-channel response finally arrives over a tasks/result
// long-poll instead of the original transport path).
type Resolvers interface {
	ResolveRequest(id jsonrpc.RequestID, result json.RawMessage, err error) bool
}

// Progress is the narrow view letting a plugin retain a progress callback
// beyond the normal request lifetime, so task-backed requests keep
// receiving progress after their create-response arrives, and release it
// again once that extended lifetime ends.
type Progress interface {
	RetainProgressHandler(id jsonrpc.RequestID)
	ReleaseProgressHandler(id jsonrpc.RequestID)
}

// Context is the view an installed Plugin receives: narrow capability
// interfaces rather than the engine itself, so plugins cannot reach
// outside their sanctioned surface.
type Context interface {
	Transport() Sender
	Handlers() Handlers
	Resolvers() Resolvers
	Progress() Progress
	ReportError(err error)
}
