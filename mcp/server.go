package mcp

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/metoro-io/mcp-runtime-go/internal/protocol"
	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
	"github.com/metoro-io/mcp-runtime-go/mcperr"
	"github.com/metoro-io/mcp-runtime-go/middleware"
	"github.com/metoro-io/mcp-runtime-go/plugin"
	"github.com/metoro-io/mcp-runtime-go/streamcall"
	"github.com/metoro-io/mcp-runtime-go/task"
	"github.com/metoro-io/mcp-runtime-go/tools"
	"github.com/metoro-io/mcp-runtime-go/transport"
)

// Server is the peer that responds to a session: it answers initialize,
// serves registered tools over tools/list and tools/call, and (when
// WithTasks is set) runs task-eligible calls through task.Manager.
type Server struct {
	cfg *config
	eng *protocol.Protocol
	mw  *middleware.ServerMiddlewareManager

	mu    sync.RWMutex
	tools map[string]*ToolDescriptor

	taskMgr            *task.Manager
	clientCapabilities ClientCapabilities
}

// NewServer builds a Server, installing the task plugin when WithTasks
// was given and the streaming plugin when WithStreaming was given. The
// transport is supplied later, at Connect, so one Server can be built and
// reconnected.
func NewServer(opts ...Option) *Server {
	cfg := newConfig(opts)
	eng := protocol.New(cfg.protocolOptions)

	s := &Server{cfg: cfg, eng: eng, tools: make(map[string]*ToolDescriptor)}
	eng.OnError = func(err error) { cfg.logger.Printf("server: %v", err) }

	mwMgr := newServerMiddleware()
	eng.SetMiddleware(mwMgr)
	s.mw = mwMgr

	plugins := append([]plugin.Plugin(nil), cfg.plugins...)
	if cfg.enableTasks {
		store := cfg.taskStore
		if store == nil {
			store = task.NewMemoryStore()
		}
		s.taskMgr = task.NewManager(store)
		plugins = append(plugins, s.taskMgr)
	}
	if cfg.enableStreaming {
		plugins = append(plugins, streamcall.NewServerPlugin(cfg.streamManager))
	}
	if err := eng.Use(plugins...); err != nil {
		panic(err)
	}

	eng.SetRequestHandler("initialize", s.handleInitialize)
	eng.SetNotificationHandler("notifications/initialized", func(context.Context, *jsonrpc.Notification) error { return nil })
	eng.SetRequestHandler("tools/list", s.wrapped("tools/list", s.handleToolsList))
	eng.SetRequestHandler("tools/call", s.wrapped("tools/call", s.handleToolsCall))

	return s
}

// wrapped runs inner through task.Manager.WrapHandler when tasks are
// enabled, so any registered method can be invoked as a task simply by
// the caller including params.task.
func (s *Server) wrapped(method string, inner protocol.RequestHandler) protocol.RequestHandler {
	if s.taskMgr == nil {
		return inner
	}
	return s.taskMgr.WrapHandler(method, inner)
}

// Middleware exposes the server-side middleware manager so callers can
// register operation-scoped middleware before Connect.
func (s *Server) Middleware() *middleware.ServerMiddlewareManager { return s.mw }

// StreamManager exposes the streaming-call manager when WithStreaming was
// given, so callers can attach its event callbacks. Nil otherwise.
func (s *Server) StreamManager() *streamcall.Manager { return s.cfg.streamManager }

// RegisterTool adds a callable tool. handler must match the shape
// NewToolDescriptor expects: func(ArgStruct) (*tools.ToolResponse, error).
func (s *Server) RegisterTool(name, description string, handler interface{}) error {
	desc, err := NewToolDescriptor(name, description, handler)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[name] = desc
	return nil
}

// Connect attaches tr and starts it, returning once the transport has
// started; serving continues in the background until the transport
// closes. Middleware registration freezes here; a Use call after Connect
// fails.
func (s *Server) Connect(ctx context.Context, tr transport.Transport) error {
	s.mw.Freeze()
	return s.eng.Connect(ctx, tr)
}

// Close tears down the underlying transport.
func (s *Server) Close() error { return s.eng.Close() }

func (s *Server) handleInitialize(_ *protocol.HandlerContext, req *jsonrpc.Request) (interface{}, error) {
	var params initializeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, mcperr.InvalidParams("decoding initialize params: " + err.Error())
	}
	s.clientCapabilities = params.Capabilities

	peer := params.Capabilities
	s.eng.SetCapabilityCheckers(
		func(method string) bool { return serverSupportsMethod(s.serverCapabilities(), method) },
		func(method string) bool { return clientSupportsMethod(peer, method) },
	)

	return initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    s.serverCapabilities(),
		ServerInfo:      Implementation{Name: s.cfg.name, Version: s.cfg.version},
	}, nil
}

func (s *Server) serverCapabilities() ServerCapabilities {
	caps := ServerCapabilities{Tools: &ToolsCapability{}}
	if s.taskMgr != nil {
		caps.Tasks = &TasksCapability{}
	}
	return caps
}

func (s *Server) handleToolsList(_ *protocol.HandlerContext, _ *jsonrpc.Request) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]toolListEntry, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, toolListEntry{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return toolsListResult{Tools: out}, nil
}

func (s *Server) handleToolsCall(hctx *protocol.HandlerContext, req *jsonrpc.Request) (interface{}, error) {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, mcperr.InvalidParams("decoding tools/call params: " + err.Error())
	}

	s.mu.RLock()
	desc, ok := s.tools[params.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, mcperr.InvalidParams(errors.Errorf("unknown tool %q", params.Name).Error())
	}

	argsJSON := params.Arguments
	if len(argsJSON) == 0 {
		argsJSON = json.RawMessage(`{}`)
	}

	resp, err := desc.Call(hctx.Context, argsJSON)
	if err != nil {
		return tools.NewToolResponseSentError(err), nil
	}
	return tools.NewToolResponseSent(resp), nil
}

type toolListEntry struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type toolsListResult struct {
	Tools []toolListEntry `json:"tools"`
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}
