package mcp

import (
	"time"

	"github.com/metoro-io/mcp-runtime-go/internal/protocol"
	"github.com/metoro-io/mcp-runtime-go/middleware"
	"github.com/metoro-io/mcp-runtime-go/plugin"
	"github.com/metoro-io/mcp-runtime-go/streamcall"
	"github.com/metoro-io/mcp-runtime-go/task"
)

// config collects the knobs both NewClient and NewServer accept, built up
// by functional options.
type config struct {
	name    string
	version string

	logger Logger

	protocolOptions protocol.Options
	plugins         []plugin.Plugin

	taskStore task.Store

	enableTasks     bool
	enableStreaming bool
	streamManager   *streamcall.Manager

	defaultRequestTimeout time.Duration
}

// Option configures a Client or Server.
type Option func(*config)

// WithName sets the peer's advertised implementation name.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithVersion sets the peer's advertised implementation version.
func WithVersion(version string) Option {
	return func(c *config) { c.version = version }
}

// WithLogger installs a Logger; the default is a stderr-backed
// *log.Logger wrapper so stdio transports are never polluted.
func WithLogger(logger Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithPlugins installs additional plugin.Plugin values beyond the ones
// the constructor wires in automatically (the task and streaming plugins).
func WithPlugins(plugins ...plugin.Plugin) Option {
	return func(c *config) { c.plugins = append(c.plugins, plugins...) }
}

// WithEnforceStrictCapabilities rejects outgoing calls the peer hasn't
// advertised support for, mirroring protocol.Options.
func WithEnforceStrictCapabilities() Option {
	return func(c *config) { c.protocolOptions.EnforceStrictCapabilities = true }
}

// WithTasks enables the task subsystem, installing task.Manager (server)
// or task.ClientPlugin (client) against store. A nil store uses
// task.NewMemoryStore().
func WithTasks(store task.Store) Option {
	return func(c *config) {
		c.enableTasks = true
		c.taskStore = store
	}
}

// WithDefaultRequestTimeout sets the timeout Client.CallTool uses when no
// WithTimeout option is given. Other calls (Ping, ListTools) and the
// server do not read it.
func WithDefaultRequestTimeout(d time.Duration) Option {
	return func(c *config) { c.defaultRequestTimeout = d }
}

// WithStreaming enables tools/stream_call, tools/stream_chunk, and
// tools/stream_complete, backed by a fresh streamcall.Manager whose four
// callbacks can be reached afterward via Server.StreamManager.
func WithStreaming() Option {
	return func(c *config) {
		c.enableStreaming = true
		c.streamManager = streamcall.NewManager()
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		name:    "mcp-runtime-go",
		version: "0.1.0",
		logger:  NewStdLogger("mcp: "),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newClientMiddleware and newServerMiddleware build a fresh manager of the
// requested kind, matching the distinct Client/Server wrapper types in
// package middleware.
func newClientMiddleware() *middleware.ClientMiddlewareManager {
	return middleware.NewClientMiddlewareManager()
}

func newServerMiddleware() *middleware.ServerMiddlewareManager {
	return middleware.NewServerMiddlewareManager()
}
