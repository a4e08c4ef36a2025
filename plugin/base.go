package plugin

import (
	"encoding/json"

	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
)

// Base is a no-op Plugin implementation meant to be embedded, the way
// Go libraries commonly ship an embeddable base for partial interface
// satisfaction. Concrete plugins embed Base and override only the hooks
// they care about.
type Base struct {
	PluginName     string
	PluginPriority int
}

func (b Base) Name() string  { return b.PluginName }
func (b Base) Priority() int { return b.PluginPriority }

func (b Base) Install(ctx Context) error       { return nil }
func (b Base) OnConnect(ctx Context, _ string) {}
func (b Base) OnClose(ctx Context)             {}

func (b Base) ShouldRouteMessage(*jsonrpc.Request, RequestOptions) bool { return false }
func (b Base) RouteMessage(Context, *jsonrpc.Request, RequestOptions) (json.RawMessage, error) {
	return nil, nil
}

func (b Base) OnBeforeSendRequest(Context, *jsonrpc.Request, RequestOptions) HookResult {
	return HookResult{}
}
func (b Base) OnBeforeSendNotification(Context, *jsonrpc.Notification, RequestOptions) HookResult {
	return HookResult{}
}
func (b Base) OnRequest(Context, *jsonrpc.Request) HookResult { return HookResult{} }
func (b Base) OnRequestResult(Context, *jsonrpc.Request, json.RawMessage) HookResult {
	return HookResult{}
}
func (b Base) OnRequestError(Context, *jsonrpc.Request, error) HookResult {
	return HookResult{}
}
func (b Base) OnResponse(Context, *jsonrpc.Request, json.RawMessage) HookResult {
	return HookResult{}
}
func (b Base) OnNotification(Context, *jsonrpc.Notification) HookResult {
	return HookResult{}
}
func (b Base) OnBuildHandlerContext(Context, *HandlerContext, *jsonrpc.Request) {}
