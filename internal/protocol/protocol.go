// Package protocol implements the core JSON-RPC engine the rest of the
// runtime sits on top of: request/response correlation, progress tracking,
// request cancellation, plugin dispatch, and timeout management. The engine
// composes a handlerRegistry for method dispatch and in-flight
// cancellation, a timeoutManager for per-request timers, and a
// progressManager for progress callbacks, and routes every message through
// the installed plugin chain before its own correlation logic.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
	"github.com/metoro-io/mcp-runtime-go/mcperr"
	"github.com/metoro-io/mcp-runtime-go/plugin"
	"github.com/metoro-io/mcp-runtime-go/transport"
)

// Options configures a Protocol at construction time.
type Options struct {
	// EnforceStrictCapabilities rejects outgoing requests/notifications
	// the peer has not advertised support for.
	EnforceStrictCapabilities bool
}

// CapabilityChecker reports whether a method is covered by a capability
// set. The mcp package supplies one backed by ClientCapabilities/
// ServerCapabilities; the engine itself stays capability-shape-agnostic.
type CapabilityChecker func(method string) bool

// RequestOptions carries the per-call knobs of a single SendRequest:
// progress reporting, the two timeout bounds, and task association.
type RequestOptions struct {
	OnProgress             ProgressCallback
	Timeout                time.Duration
	MaxTotalTimeout        time.Duration
	ResetTimeoutOnProgress bool
	Task                   *plugin.TaskOptions
	RelatedTask            *plugin.TaskRef
}

func (o *RequestOptions) toPluginOptions() plugin.RequestOptions {
	if o == nil {
		return plugin.RequestOptions{}
	}
	return plugin.RequestOptions{Task: o.Task, RelatedTask: o.RelatedTask}
}

type responseEnvelope struct {
	result json.RawMessage
	err    error
}

// Middleware is the onion-model hook the middleware package's
// ClientMiddlewareManager/ServerMiddlewareManager satisfy, kept as a
// narrow interface here so internal/protocol never imports middleware;
// the chains are layered on top of the engine, not inside it.
type Middleware interface {
	// WrapOutgoing runs before an outgoing request/notification is
	// framed, returning the (possibly replaced) params.
	WrapOutgoing(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)
	// WrapIncoming wraps the invocation of an incoming request's handler.
	WrapIncoming(ctx context.Context, method string, params json.RawMessage, next func() (interface{}, error)) (interface{}, error)
}

// Protocol correlates requests with responses over exactly one transport,
// composes handlerRegistry/timeoutManager/progressManager, and runs every
// message through the installed, priority-sorted plugin chain.
type Protocol struct {
	mu        sync.RWMutex
	transport transport.Transport
	options   Options

	handlers    *handlerRegistry
	timeouts    *timeoutManager
	progressMgr *progressManager

	plugins    []plugin.Plugin
	middleware Middleware

	nextID  int64
	waiters map[string]chan responseEnvelope

	localCapability CapabilityChecker
	peerCapability  CapabilityChecker

	OnClose func()
	OnError func(error)
}

// New builds a Protocol with the built-in handlers every peer carries:
// ping, notifications/cancelled, and notifications/progress.
func New(opts Options) *Protocol {
	p := &Protocol{
		options:     opts,
		handlers:    newHandlerRegistry(),
		timeouts:    newTimeoutManager(),
		progressMgr: newProgressManager(),
		waiters:     make(map[string]chan responseEnvelope),
	}

	p.handlers.setNotificationHandler("notifications/cancelled", p.handleCancelledNotification)
	p.handlers.setNotificationHandler("notifications/progress", p.handleProgressNotification)
	p.handlers.setRequestHandler("ping", func(*HandlerContext, *jsonrpc.Request) (interface{}, error) {
		return struct{}{}, nil
	})

	return p
}

// Use installs plugins, sorting the combined set by descending priority
// (ties keep registration order, i.e. a stable sort) and calling each new
// plugin's Install hook exactly once. Must be called before Connect.
func (p *Protocol) Use(plugins ...plugin.Plugin) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.transport != nil {
		return errors.New("protocol: cannot install plugins after Connect")
	}

	for _, pl := range plugins {
		for _, existing := range p.plugins {
			if existing.Name() == pl.Name() {
				return errors.Errorf("protocol: plugin %q already installed", pl.Name())
			}
		}
		if err := pl.Install(p.pluginContext()); err != nil {
			return errors.Wrapf(err, "protocol: installing plugin %q", pl.Name())
		}
		p.plugins = append(p.plugins, pl)
	}

	sort.SliceStable(p.plugins, func(i, j int) bool {
		return p.plugins[i].Priority() > p.plugins[j].Priority()
	})
	return nil
}

// SetMiddleware installs the onion-model middleware chain. Must be called
// before Connect; the middleware managers freeze their own chains at that
// point.
func (p *Protocol) SetMiddleware(mw Middleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.middleware = mw
}

// SetCapabilityCheckers installs the local/peer capability predicates used
// by AssertPeerCapability.
func (p *Protocol) SetCapabilityCheckers(local, peer CapabilityChecker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.localCapability = local
	p.peerCapability = peer
}

// AssertPeerCapability returns an error if EnforceStrictCapabilities is set
// and the peer has not advertised support for method.
func (p *Protocol) AssertPeerCapability(method string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.options.EnforceStrictCapabilities || p.peerCapability == nil {
		return nil
	}
	if !p.peerCapability(method) {
		return errors.Errorf("protocol: peer does not support %q", method)
	}
	return nil
}

// Connect attaches to tr, wires its handlers, runs every plugin's
// OnConnect hook, and starts it. Fails if a transport is already
// connected; Close detaches so the Protocol can be connected again.
func (p *Protocol) Connect(ctx context.Context, tr transport.Transport) error {
	p.mu.Lock()
	if p.transport != nil {
		p.mu.Unlock()
		return errors.New("protocol: already connected to a transport")
	}
	p.transport = tr
	plugins := append([]plugin.Plugin(nil), p.plugins...)
	p.mu.Unlock()

	tr.SetCloseHandler(p.handleClose)
	tr.SetErrorHandler(p.handleError)
	tr.SetMessageHandler(func(msg *jsonrpc.Message, extra *transport.Extra) {
		switch msg.Kind {
		case jsonrpc.KindRequest:
			p.handleRequest(msg.Request)
		case jsonrpc.KindNotification:
			p.handleNotification(msg.Notification)
		case jsonrpc.KindResponse:
			p.handleResponse(msg.Response.ID, msg.Response.Result, nil)
		case jsonrpc.KindErrorResponse:
			rpcErr := &mcperr.Error{
				Code:    msg.Error.Error.Code,
				Message: msg.Error.Error.Message,
				Data:    msg.Error.Error.Data,
			}
			p.handleResponse(msg.Error.ID, nil, rpcErr)
		}
	})

	sessionID, _ := tr.SessionID()
	for _, pl := range plugins {
		pl.OnConnect(p.pluginContext(), sessionID)
	}

	return tr.Start(ctx)
}

func (p *Protocol) handleClose() {
	p.mu.Lock()
	plugins := append([]plugin.Plugin(nil), p.plugins...)
	waiters := p.waiters
	p.waiters = make(map[string]chan responseEnvelope)
	p.transport = nil
	p.mu.Unlock()

	p.handlers.abortAllPendingRequests()
	p.timeouts.clearAll()
	p.progressMgr.clearAll()

	for _, ch := range waiters {
		ch <- responseEnvelope{err: mcperr.RequestCancelled("connection closed")}
		close(ch)
	}

	for _, pl := range plugins {
		pl.OnClose(p.pluginContext())
	}

	if p.OnClose != nil {
		p.OnClose()
	}
}

func (p *Protocol) handleError(err error) {
	if p.OnError != nil {
		p.OnError(err)
	}
}

// Close tears down the transport; handleClose performs the actual cleanup
// once the transport invokes the close handler.
func (p *Protocol) Close() error {
	p.mu.RLock()
	tr := p.transport
	p.mu.RUnlock()
	if tr == nil {
		return nil
	}
	return tr.Close()
}

func (p *Protocol) snapshotPlugins() []plugin.Plugin {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]plugin.Plugin(nil), p.plugins...)
}

// SendRequest emits a request and blocks until its response, cancellation,
// or timeout. It runs the outgoing middleware chain, the plugin
// OnBeforeSendRequest hooks, and the plugin routing gate before handing
// off to the transport; a plugin that routes the message replaces the
// transport send entirely.
func (p *Protocol) SendRequest(ctx context.Context, method string, params interface{}, opts *RequestOptions) (json.RawMessage, error) {
	p.mu.RLock()
	tr := p.transport
	p.mu.RUnlock()
	if tr == nil {
		return nil, errors.New("protocol: not connected")
	}
	if opts == nil {
		opts = &RequestOptions{}
	}
	if err := p.AssertPeerCapability(method); err != nil {
		return nil, err
	}

	rawParams, err := marshalParams(params)
	if err != nil {
		return nil, errors.Wrap(err, "protocol: marshaling request params")
	}

	if p.middleware != nil {
		rawParams, err = p.middleware.WrapOutgoing(ctx, method, rawParams)
		if err != nil {
			return nil, err
		}
	}

	id := jsonrpc.NewNumberID(atomic.AddInt64(&p.nextID, 1))

	if opts.OnProgress != nil {
		rawParams, err = jsonrpc.WithProgressToken(rawParams, id.String())
		if err != nil {
			return nil, err
		}
	}
	if opts.RelatedTask != nil {
		rawParams, err = jsonrpc.WithRelatedTask(rawParams, opts.RelatedTask.TaskID)
		if err != nil {
			return nil, err
		}
	}

	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: id, Method: method, Params: rawParams}
	pluginOpts := opts.toPluginOptions()

	plugins := p.snapshotPlugins()
	for _, pl := range plugins {
		res := pl.OnBeforeSendRequest(p.pluginContext(), req, pluginOpts)
		if res.Request != nil {
			req = res.Request
		}
		if res.Err != nil {
			return nil, res.Err
		}
	}

	for _, pl := range plugins {
		if !pl.ShouldRouteMessage(req, pluginOpts) {
			continue
		}
		return pl.RouteMessage(p.pluginContext(), req, pluginOpts)
	}

	ch := make(chan responseEnvelope, 1)
	p.mu.Lock()
	p.waiters[id.String()] = ch
	p.mu.Unlock()
	if opts.OnProgress != nil {
		p.progressMgr.registerHandler(id.String(), opts.OnProgress)
	}

	defer func() {
		p.mu.Lock()
		delete(p.waiters, id.String())
		p.mu.Unlock()
		p.timeouts.cleanup(id.String())
		p.progressMgr.removeHandler(id.String())
	}()

	p.timeouts.setup(id.String(), timeoutSetupOptions{
		Timeout:         opts.Timeout,
		MaxTotalTimeout: opts.MaxTotalTimeout,
		ResetOnProgress: opts.ResetTimeoutOnProgress,
		OnTimeout: func() {
			p.resolveWaiter(id.String(), nil, mcperr.RequestTimeout(fmt.Sprintf("request %q timed out", method)))
			p.sendCancelNotification(id, "request timeout")
		},
	})

	if err := tr.Send(ctx, &jsonrpc.Message{Kind: jsonrpc.KindRequest, Request: req}, nil); err != nil {
		return nil, errors.Wrap(err, "protocol: sending request")
	}

	select {
	case envelope := <-ch:
		return envelope.result, envelope.err
	case <-ctx.Done():
		p.sendCancelNotification(id, ctx.Err().Error())
		return nil, mcperr.RequestCancelled(ctx.Err().Error())
	}
}

// SendNotification emits a one-way message with no response.
func (p *Protocol) SendNotification(ctx context.Context, method string, params interface{}, opts *RequestOptions) error {
	p.mu.RLock()
	tr := p.transport
	p.mu.RUnlock()
	if tr == nil {
		return errors.New("protocol: not connected")
	}
	if err := p.AssertPeerCapability(method); err != nil {
		return err
	}
	if opts == nil {
		opts = &RequestOptions{}
	}

	rawParams, err := marshalParams(params)
	if err != nil {
		return errors.Wrap(err, "protocol: marshaling notification params")
	}
	if p.middleware != nil {
		rawParams, err = p.middleware.WrapOutgoing(ctx, method, rawParams)
		if err != nil {
			return err
		}
	}
	if opts.RelatedTask != nil {
		rawParams, err = jsonrpc.WithRelatedTask(rawParams, opts.RelatedTask.TaskID)
		if err != nil {
			return err
		}
	}

	notif := &jsonrpc.Notification{JSONRPC: jsonrpc.Version, Method: method, Params: rawParams}
	pluginOpts := opts.toPluginOptions()
	for _, pl := range p.snapshotPlugins() {
		res := pl.OnBeforeSendNotification(p.pluginContext(), notif, pluginOpts)
		if res.Notification != nil {
			notif = res.Notification
		}
		if res.Err != nil {
			return res.Err
		}
	}

	return tr.Send(ctx, &jsonrpc.Message{Kind: jsonrpc.KindNotification, Notification: notif}, nil)
}

func (p *Protocol) sendCancelNotification(id jsonrpc.RequestID, reason string) {
	params := struct {
		RequestID jsonrpc.RequestID `json:"requestId"`
		Reason    string            `json:"reason"`
	}{RequestID: id, Reason: reason}
	if err := p.SendNotification(context.Background(), "notifications/cancelled", params, nil); err != nil {
		p.handleError(errors.Wrap(err, "protocol: sending cancellation notification"))
	}
}

func (p *Protocol) resolveWaiter(id string, result json.RawMessage, err error) bool {
	p.mu.Lock()
	ch, ok := p.waiters[id]
	if ok {
		delete(p.waiters, id)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- responseEnvelope{result: result, err: err}
	close(ch)
	return true
}

// ResolveRequest implements plugin.Resolvers, letting the task subsystem
// settle a waiting SendRequest call out of band once a queued response
// finally arrives over a tasks/result long-poll.
func (p *Protocol) ResolveRequest(id jsonrpc.RequestID, result json.RawMessage, err error) bool {
	return p.resolveWaiter(id.String(), result, err)
}

// RetainProgressHandler implements plugin.Progress.
func (p *Protocol) RetainProgressHandler(id jsonrpc.RequestID) {
	p.progressMgr.retain(id.String())
}

// ReleaseProgressHandler implements plugin.Progress. It forgets a
// retained handler once the task that extended its lifetime has reached
// a terminal state, per spec invariant (4): progress handlers survive
// UNTIL the task reaches terminal state, not for the life of the
// connection.
func (p *Protocol) ReleaseProgressHandler(id jsonrpc.RequestID) {
	p.progressMgr.release(id.String())
}

func (p *Protocol) handleResponse(id jsonrpc.RequestID, result json.RawMessage, err error) {
	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: id}
	for _, pl := range p.snapshotPlugins() {
		res := pl.OnResponse(p.pluginContext(), req, result)
		if res.Result != nil {
			result = res.Result
		}
		if res.Err != nil {
			err = res.Err
		}
	}
	p.resolveWaiter(id.String(), result, err)
}

func (p *Protocol) handleNotification(notif *jsonrpc.Notification) {
	for _, pl := range p.snapshotPlugins() {
		res := pl.OnNotification(p.pluginContext(), notif)
		if res.Routed {
			return
		}
	}

	handler, ok := p.handlers.notificationHandler(notif.Method)
	if !ok {
		return
	}
	go func() {
		if err := handler(context.Background(), notif); err != nil {
			p.handleError(errors.Wrapf(err, "protocol: notification handler for %q", notif.Method))
		}
	}()
}

func (p *Protocol) handleCancelledNotification(_ context.Context, notif *jsonrpc.Notification) error {
	var params struct {
		RequestID jsonrpc.RequestID `json:"requestId"`
		Reason    string            `json:"reason"`
	}
	if err := json.Unmarshal(notif.Params, &params); err != nil {
		return errors.Wrap(err, "unmarshaling cancelled params")
	}
	p.handlers.cancel(params.RequestID.String())
	return nil
}

func (p *Protocol) handleProgressNotification(_ context.Context, notif *jsonrpc.Notification) error {
	var params struct {
		ProgressToken string  `json:"progressToken"`
		Progress      int64   `json:"progress"`
		Total         *int64  `json:"total,omitempty"`
		Message       *string `json:"message,omitempty"`
	}
	if err := json.Unmarshal(notif.Params, &params); err != nil {
		return errors.Wrap(err, "unmarshaling progress params")
	}
	p.progressMgr.dispatch(params.ProgressToken, params.Progress, params.Total, params.Message)

	reset := p.timeouts.reset(params.ProgressToken)
	if !reset.Success && reset.MaxTotalTimeoutExceed != nil {
		exceeded := mcperr.RequestTimeout("request exceeded its maximum total timeout").WithData(mcperr.MaxTotalTimeoutExceeded{
			ElapsedMillis:         reset.MaxTotalTimeoutExceed.Elapsed.Milliseconds(),
			MaxTotalTimeoutMillis: reset.MaxTotalTimeoutExceed.MaxTotalTimeout.Milliseconds(),
		})
		p.resolveWaiter(params.ProgressToken, nil, exceeded)
		p.timeouts.cleanup(params.ProgressToken)
	}
	return nil
}

func (p *Protocol) handleRequest(req *jsonrpc.Request) {
	hctx := &HandlerContext{
		Context:   context.Background(),
		RequestID: req.ID,
		Send:      (*senderAdapter)(p),
		Values:    make(map[interface{}]interface{}),
	}
	if sid, ok := p.transportSessionID(); ok {
		hctx.SessionID = sid
	}

	plugins := p.snapshotPlugins()
	for _, pl := range plugins {
		pl.OnBuildHandlerContext(p.pluginContext(), hctx, req)
	}

	for _, pl := range plugins {
		res := pl.OnRequest(p.pluginContext(), req)
		if res.Routed {
			return
		}
		if res.Err != nil {
			p.sendErrorResponse(req.ID, res.Err)
			return
		}
		if res.Result != nil {
			p.sendResult(req.ID, res.Result)
			return
		}
	}

	p.mu.RLock()
	strict := p.options.EnforceStrictCapabilities
	local := p.localCapability
	p.mu.RUnlock()
	if strict && local != nil && !local(req.Method) {
		p.sendErrorResponse(req.ID, mcperr.MethodNotFound(req.Method))
		return
	}

	handler, ok := p.handlers.requestHandler(req.Method)
	if !ok {
		p.sendErrorResponse(req.ID, mcperr.MethodNotFound(req.Method))
		return
	}

	ctx, cancel := context.WithCancel(hctx.Context)
	hctx.Context = ctx
	p.handlers.registerCanceller(req.ID.String(), cancel)

	go func() {
		defer func() {
			p.handlers.clearCanceller(req.ID.String())
			cancel()
		}()

		invoke := func() (interface{}, error) { return handler(hctx, req) }
		var result interface{}
		var err error
		if p.middleware != nil {
			result, err = p.middleware.WrapIncoming(ctx, req.Method, req.Params, invoke)
		} else {
			result, err = invoke()
		}

		// A remotely-cancelled handler must not produce a late response.
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			for _, pl := range plugins {
				res := pl.OnRequestError(p.pluginContext(), req, err)
				if res.Err != nil {
					err = res.Err
				}
			}
			p.sendErrorResponse(req.ID, err)
			return
		}

		raw, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			p.sendErrorResponse(req.ID, mcperr.InternalError(marshalErr.Error()))
			return
		}
		for _, pl := range plugins {
			res := pl.OnRequestResult(p.pluginContext(), req, raw)
			if res.Result != nil {
				raw = res.Result
			}
		}
		p.sendResult(req.ID, raw)
	}()
}

func (p *Protocol) sendResult(id jsonrpc.RequestID, result json.RawMessage) {
	p.mu.RLock()
	tr := p.transport
	p.mu.RUnlock()
	if tr == nil {
		return
	}
	resp := &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: id, Result: result}
	if err := tr.Send(context.Background(), &jsonrpc.Message{Kind: jsonrpc.KindResponse, Response: resp}, nil); err != nil {
		p.handleError(errors.Wrap(err, "protocol: sending response"))
	}
}

func (p *Protocol) sendErrorResponse(id jsonrpc.RequestID, err error) {
	p.mu.RLock()
	tr := p.transport
	p.mu.RUnlock()
	if tr == nil {
		return
	}
	rpcErr, ok := mcperr.AsError(err)
	if !ok {
		rpcErr = mcperr.InternalError(err.Error())
	}
	resp := &jsonrpc.ErrorResponse{
		JSONRPC: jsonrpc.Version,
		ID:      id,
		Error:   jsonrpc.ErrorObject{Code: rpcErr.Code, Message: rpcErr.Message, Data: rpcErr.Data},
	}
	if sendErr := tr.Send(context.Background(), &jsonrpc.Message{Kind: jsonrpc.KindErrorResponse, Error: resp}, nil); sendErr != nil {
		p.handleError(errors.Wrap(sendErr, "protocol: sending error response"))
	}
}

func (p *Protocol) transportSessionID() (string, bool) {
	p.mu.RLock()
	tr := p.transport
	p.mu.RUnlock()
	if tr == nil {
		return "", false
	}
	return tr.SessionID()
}

// SetRequestHandler registers the handler for method, overwriting any
// existing registration.
func (p *Protocol) SetRequestHandler(method string, h RequestHandler) {
	p.handlers.setRequestHandler(method, h)
}

// RemoveRequestHandler removes the handler for method.
func (p *Protocol) RemoveRequestHandler(method string) { p.handlers.removeRequestHandler(method) }

// SetNotificationHandler registers the handler for method.
func (p *Protocol) SetNotificationHandler(method string, h NotificationHandler) {
	p.handlers.setNotificationHandler(method, h)
}

// RemoveNotificationHandler removes the handler for method.
func (p *Protocol) RemoveNotificationHandler(method string) {
	p.handlers.removeNotificationHandler(method)
}

// SetFallbackRequestHandler installs the handler invoked for methods with
// no specific registration.
func (p *Protocol) SetFallbackRequestHandler(h RequestHandler) {
	p.handlers.mu.Lock()
	defer p.handlers.mu.Unlock()
	p.handlers.fallbackRequest = h
}

// SetFallbackNotificationHandler installs the fallback notification handler.
func (p *Protocol) SetFallbackNotificationHandler(h NotificationHandler) {
	p.handlers.mu.Lock()
	defer p.handlers.mu.Unlock()
	p.handlers.fallbackNotification = h
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(params)
}

// pluginContext builds the narrow capability view a plugin receives for
// the duration of a single hook call; plugins never see the Protocol
// itself.
func (p *Protocol) pluginContext() plugin.Context { return (*pluginContextAdapter)(p) }

type pluginContextAdapter Protocol

func (a *pluginContextAdapter) proto() *Protocol { return (*Protocol)(a) }

func (a *pluginContextAdapter) Transport() plugin.Sender    { return (*senderAdapter)(a.proto()) }
func (a *pluginContextAdapter) Handlers() plugin.Handlers   { return (*handlersAdapter)(a.proto()) }
func (a *pluginContextAdapter) Resolvers() plugin.Resolvers { return a.proto() }
func (a *pluginContextAdapter) Progress() plugin.Progress   { return a.proto() }
func (a *pluginContextAdapter) ReportError(err error)       { a.proto().handleError(err) }

type senderAdapter Protocol

func (s *senderAdapter) SendRequest(ctx context.Context, method string, params interface{}, opts plugin.RequestOptions) (json.RawMessage, error) {
	return (*Protocol)(s).SendRequest(ctx, method, params, &RequestOptions{Task: opts.Task, RelatedTask: opts.RelatedTask})
}

func (s *senderAdapter) SendNotification(ctx context.Context, method string, params interface{}, opts plugin.RequestOptions) error {
	return (*Protocol)(s).SendNotification(ctx, method, params, &RequestOptions{Task: opts.Task, RelatedTask: opts.RelatedTask})
}

type handlersAdapter Protocol

func (h *handlersAdapter) SetRequestHandler(method string, fn func(context.Context, *jsonrpc.Request) (interface{}, error)) {
	(*Protocol)(h).SetRequestHandler(method, func(hctx *HandlerContext, req *jsonrpc.Request) (interface{}, error) {
		return fn(hctx.Context, req)
	})
}

func (h *handlersAdapter) SetNotificationHandler(method string, fn func(context.Context, *jsonrpc.Notification) error) {
	(*Protocol)(h).SetNotificationHandler(method, func(ctx context.Context, notif *jsonrpc.Notification) error {
		return fn(ctx, notif)
	})
}

func (h *handlersAdapter) RemoveRequestHandler(method string) {
	(*Protocol)(h).RemoveRequestHandler(method)
}

func (h *handlersAdapter) RemoveNotificationHandler(method string) {
	(*Protocol)(h).RemoveNotificationHandler(method)
}
