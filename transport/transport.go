// Package transport defines the duplex, message-framed channel the
// protocol engine runs over: Start/Send/Close plus handler registration,
// shared by every concrete transport. The engine trusts the transport to
// deliver exactly one JSON-RPC value per message callback.
package transport

import (
	"context"

	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
)

// Extra carries delivery metadata alongside an inbound message, such as the
// request id a response-shaped message relates to on transports that
// multiplex several open requests over one stream.
type Extra struct {
	RelatedRequestID *jsonrpc.RequestID
}

// SendOptions carries options for a single outgoing send, e.g. binding it
// to the request whose long-poll response stream should carry it. The
// protocol engine and the task subsystem send with nil options.
type SendOptions struct {
	RelatedRequestID *jsonrpc.RequestID
}

// Transport delivers framed JSON-RPC messages in both directions and
// reports lifecycle events. Implementations must be safe for concurrent
// Send calls from multiple in-flight requests.
type Transport interface {
	// Start begins reading from the underlying channel. Must be called
	// exactly once.
	Start(ctx context.Context) error

	// Send writes one JSON-RPC message. Safe to call concurrently.
	Send(ctx context.Context, msg *jsonrpc.Message, opts *SendOptions) error

	// Close tears down the transport. Idempotent.
	Close() error

	// SetMessageHandler registers the callback invoked for each inbound
	// message, with Extra populated when the transport has delivery
	// metadata for it.
	SetMessageHandler(func(msg *jsonrpc.Message, extra *Extra))

	// SetCloseHandler registers the callback invoked once the transport
	// has finished closing, for any reason.
	SetCloseHandler(func())

	// SetErrorHandler registers the callback invoked on unrecoverable
	// transport-level errors (e.g. a malformed frame, a broken pipe).
	SetErrorHandler(func(error))

	// SessionID returns the transport's session identifier, if it has one.
	SessionID() (string, bool)
}
