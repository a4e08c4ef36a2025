package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/metoro-io/mcp-runtime-go/internal/protocol"
	"github.com/metoro-io/mcp-runtime-go/middleware"
	"github.com/metoro-io/mcp-runtime-go/plugin"
	"github.com/metoro-io/mcp-runtime-go/task"
	"github.com/metoro-io/mcp-runtime-go/transport"
)

// Client is the peer that initiates a session: it negotiates
// capabilities during Connect and then issues requests (ping,
// tools/list, tools/call, ...) against the engine.
type Client struct {
	cfg *config
	eng *protocol.Protocol
	mw  *middleware.ClientMiddlewareManager

	serverCapabilities ServerCapabilities
	serverInfo         Implementation

	taskClient *task.ClientPlugin
}

// NewClient builds a Client wired with the task and middleware plugins
// requested via opts. The transport is supplied later, at Connect, so one
// Client can be built and reconnected.
func NewClient(opts ...Option) *Client {
	cfg := newConfig(opts)
	eng := protocol.New(cfg.protocolOptions)

	c := &Client{cfg: cfg, eng: eng}
	eng.OnError = func(err error) { cfg.logger.Printf("client: %v", err) }

	mwMgr := newClientMiddleware()
	eng.SetMiddleware(mwMgr)
	c.mw = mwMgr

	plugins := append([]plugin.Plugin(nil), cfg.plugins...)
	if cfg.enableTasks {
		c.taskClient = task.NewClientPlugin()
		plugins = append(plugins, c.taskClient)
	}
	if err := eng.Use(plugins...); err != nil {
		// Plugin names are controlled entirely by this constructor and its
		// caller; a collision here is a programming error, not a runtime
		// condition callers should have to check for.
		panic(err)
	}

	return c
}

// Middleware exposes the client-side middleware manager so callers can
// register onion middleware before Connect.
func (c *Client) Middleware() *middleware.ClientMiddlewareManager { return c.mw }

// Connect attaches tr and performs the initialize handshake. Middleware
// registration freezes here; a Use call after Connect fails.
func (c *Client) Connect(ctx context.Context, tr transport.Transport) error {
	c.mw.Freeze()
	if err := c.eng.Connect(ctx, tr); err != nil {
		return errors.Wrap(err, "mcp: connecting client")
	}

	params := initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    c.clientCapabilities(),
		ClientInfo:      Implementation{Name: c.cfg.name, Version: c.cfg.version},
	}
	raw, err := c.eng.SendRequest(ctx, "initialize", params, &protocol.RequestOptions{})
	if err != nil {
		return errors.Wrap(err, "mcp: initialize")
	}

	var result initializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return errors.Wrap(err, "mcp: decoding initialize result")
	}
	c.serverCapabilities = result.Capabilities
	c.serverInfo = result.ServerInfo

	peer := result.Capabilities
	c.eng.SetCapabilityCheckers(
		func(method string) bool { return clientSupportsMethod(c.clientCapabilities(), method) },
		func(method string) bool { return serverSupportsMethod(peer, method) },
	)

	return c.eng.SendNotification(ctx, "notifications/initialized", struct{}{}, nil)
}

func (c *Client) clientCapabilities() ClientCapabilities {
	caps := ClientCapabilities{}
	if c.cfg.enableTasks {
		caps.Tasks = &TasksCapability{}
	}
	return caps
}

// ServerCapabilities returns the capability set the peer advertised
// during initialize.
func (c *Client) ServerCapabilities() ServerCapabilities { return c.serverCapabilities }

// ServerInfo returns the peer's advertised implementation identity.
func (c *Client) ServerInfo() Implementation { return c.serverInfo }

// Ping probes the peer; the empty result only proves liveness.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.eng.SendRequest(ctx, "ping", nil, nil)
	return err
}

// ToolInfo is one entry of a tools/list response.
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ListTools fetches the peer's tool registry.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	raw, err := c.eng.SendRequest(ctx, "tools/list", nil, nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errors.Wrap(err, "mcp: decoding tools/list result")
	}
	return result.Tools, nil
}

// CallTool issues a tools/call request and returns the raw result JSON
// (a tools.ToolResponse-shaped object) undecoded, honoring
// timeout/progress options.
func (c *Client) CallTool(ctx context.Context, name string, arguments interface{}, opts ...CallOption) (json.RawMessage, error) {
	params := struct {
		Name      string      `json:"name"`
		Arguments interface{} `json:"arguments,omitempty"`
	}{Name: name, Arguments: arguments}

	ro := &protocol.RequestOptions{Timeout: c.cfg.defaultRequestTimeout}
	for _, opt := range opts {
		opt(ro)
	}

	return c.eng.SendRequest(ctx, "tools/call", params, ro)
}

// CallToolAsTask issues a tools/call request that runs as a server-side
// task, streaming lifecycle events back as the server reports progress
// and eventually completes.
func (c *Client) CallToolAsTask(ctx context.Context, name string, arguments interface{}, ttl time.Duration) (<-chan task.Event, error) {
	params := struct {
		Name      string      `json:"name"`
		Arguments interface{} `json:"arguments,omitempty"`
	}{Name: name, Arguments: arguments}

	var ttlMillis *int64
	if ttl > 0 {
		ms := ttl.Milliseconds()
		ttlMillis = &ms
	}

	var releaser task.Releaser
	if c.taskClient != nil {
		releaser = c.taskClient
	}
	return task.RequestStream(ctx, &engineSender{c.eng}, releaser, "tools/call", params, ttlMillis)
}

// engineSender adapts *protocol.Protocol to task.Sender.
type engineSender struct{ eng *protocol.Protocol }

func (e *engineSender) SendRequest(ctx context.Context, method string, params interface{}, opts *protocol.RequestOptions) (json.RawMessage, error) {
	return e.eng.SendRequest(ctx, method, params, opts)
}

// CallOption configures a single Client call.
type CallOption func(*protocol.RequestOptions)

// WithTimeout bounds how long a single call may run before it fails with
// ErrRequestTimeout.
func WithTimeout(d time.Duration) CallOption {
	return func(o *protocol.RequestOptions) { o.Timeout = d }
}

// WithProgress registers a callback for progress notifications the peer
// sends while the call is outstanding.
func WithProgress(cb func(progress int64, total *int64, message *string)) CallOption {
	return func(o *protocol.RequestOptions) { o.OnProgress = protocol.ProgressCallback(cb) }
}

// WithMaxTotalTimeout bounds the cumulative time a call may run across
// any number of progress-triggered resets.
func WithMaxTotalTimeout(d time.Duration) CallOption {
	return func(o *protocol.RequestOptions) { o.MaxTotalTimeout = d; o.ResetTimeoutOnProgress = true }
}

// Close tears down the underlying transport.
func (c *Client) Close() error { return c.eng.Close() }

type initializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}
