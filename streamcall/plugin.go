package streamcall

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
	"github.com/metoro-io/mcp-runtime-go/plugin"
)

// ServerPlugin wires a Manager to the three streaming methods
// (tools/stream_call, tools/stream_chunk, tools/stream_complete), the way
// task.Manager wires its subsystem to tasks/*.
type ServerPlugin struct {
	plugin.Base
	mgr *Manager
}

// NewServerPlugin builds a ServerPlugin around mgr.
func NewServerPlugin(mgr *Manager) *ServerPlugin {
	return &ServerPlugin{Base: plugin.Base{PluginName: "streamcall", PluginPriority: 90}, mgr: mgr}
}

func (p *ServerPlugin) Install(ctx plugin.Context) error {
	h := ctx.Handlers()
	h.SetRequestHandler("tools/stream_call", p.handleStreamCall)
	h.SetRequestHandler("tools/stream_chunk", p.handleStreamChunk)
	h.SetRequestHandler("tools/stream_complete", p.handleStreamComplete)
	return nil
}

type streamCallParams struct {
	CallID      string              `json:"callId"`
	ToolName    string              `json:"toolName"`
	Annotations []StreamingArgument `json:"streamingArguments"`
	Config      Config              `json:"config"`
}

func (p *ServerPlugin) handleStreamCall(_ context.Context, req *jsonrpc.Request) (interface{}, error) {
	var params streamCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, errors.Wrap(err, "streamcall: decoding tools/stream_call params")
	}
	if err := p.mgr.StartCall(params.CallID, params.ToolName, params.Annotations, params.Config); err != nil {
		return nil, err
	}
	return struct {
		CallID string `json:"callId"`
	}{CallID: params.CallID}, nil
}

type streamChunkParams struct {
	CallID   string          `json:"callId"`
	Argument string          `json:"argument"`
	Data     json.RawMessage `json:"data"`
	IsFinal  bool            `json:"isFinal,omitempty"`
}

func (p *ServerPlugin) handleStreamChunk(_ context.Context, req *jsonrpc.Request) (interface{}, error) {
	var params streamChunkParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, errors.Wrap(err, "streamcall: decoding tools/stream_chunk params")
	}
	if err := p.mgr.HandleChunk(params.CallID, params.Argument, params.Data, params.IsFinal); err != nil {
		return nil, err
	}
	return struct {
		Accepted bool `json:"accepted"`
	}{Accepted: true}, nil
}

type streamCompleteParams struct {
	CallID string `json:"callId"`
}

func (p *ServerPlugin) handleStreamComplete(_ context.Context, req *jsonrpc.Request) (interface{}, error) {
	var params streamCompleteParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, errors.Wrap(err, "streamcall: decoding tools/stream_complete params")
	}
	result, err := p.mgr.Complete(params.CallID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return struct {
			Complete bool `json:"complete"`
		}{Complete: false}, nil
	}
	return json.RawMessage(result), nil
}
