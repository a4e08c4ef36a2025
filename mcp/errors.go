package mcp

import "github.com/metoro-io/mcp-runtime-go/mcperr"

// Error is the peer-facing error type: an alias of mcperr.Error so
// callers outside the runtime never need to import the error package
// directly.
type Error = mcperr.Error

// Sentinel constructors mirror mcperr's, kept here so application code
// written against package mcp never has to import package mcperr to
// build or recognize one of these.
var (
	ErrParse             = mcperr.ParseError
	ErrInvalidRequest    = mcperr.InvalidRequest
	ErrMethodNotFound    = mcperr.MethodNotFound
	ErrInvalidParams     = mcperr.InvalidParams
	ErrInternal          = mcperr.InternalError
	ErrRequestTimeout    = mcperr.RequestTimeout
	ErrRequestCancelled  = mcperr.RequestCancelled
	ErrUnauthorized      = mcperr.Unauthorized
)

// AsError unwraps err looking for an *Error, the way mcperr.AsError does,
// re-exported so callers don't need the mcperr import either.
func AsError(err error) (*Error, bool) { return mcperr.AsError(err) }
