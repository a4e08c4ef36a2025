package task

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/metoro-io/mcp-runtime-go/internal/protocol"
	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
	"github.com/metoro-io/mcp-runtime-go/mcperr"
	"github.com/metoro-io/mcp-runtime-go/plugin"
)

// sideChannelResult is delivered through Manager.pending once a drained
// queued request is actually dispatched over the wire by a tasks/result
// long-poll, or once it is rejected outright (task cancelled).
type sideChannelResult struct {
	result json.RawMessage
	err    error
}

// TaskSummary is the wire shape of a task reference, returned by
// tasks/get, tasks/list, and task-creating calls. PollIntervalMillis hints
// how often the client should poll while the task is non-terminal.
type TaskSummary struct {
	TaskID             string `json:"taskId"`
	Status             Status `json:"status"`
	PollIntervalMillis int64  `json:"pollInterval,omitempty"`
	StatusMessage      string `json:"statusMessage,omitempty"`
}

// CreateTaskResult is returned synchronously in place of a tool's normal
// result when the caller requested task execution (params.task set).
type CreateTaskResult struct {
	Task TaskSummary `json:"task"`
}

type taskContextKey struct{}

// WithTask attaches a task id to ctx so handler code can report progress
// against the right task instead of assuming a live transport.
func WithTask(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, taskContextKey{}, id)
}

// FromContext returns the task id associated with ctx, if any.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(taskContextKey{}).(string)
	return id, ok
}

// Manager is the server-side task subsystem: it registers tasks/get,
// tasks/result, tasks/list, and tasks/cancel, and exposes WrapHandler so
// server wiring code can make any request handler task-capable without the
// engine itself needing to know about tasks.
type Manager struct {
	plugin.Base

	store Store
	queue *MessageQueue
	sink  plugin.Sender // the engine's real send path, used only to drain side-channel messages

	mu          sync.Mutex
	cancels     map[string]context.CancelFunc
	pending     map[string]chan sideChannelResult // correlationID -> waiter, for requests awaiting drain or in flight
	pendingTask map[string]string                 // correlationID -> taskID, so a cancel can find in-flight waiters by task

	defaultPageSize int
	pollInterval    time.Duration
}

// DefaultServerPollInterval is the poll hint advertised on non-terminal
// task summaries when the embedding application doesn't override it.
const DefaultServerPollInterval = 500 * time.Millisecond

// NewManager builds a Manager backed by store (NewMemoryStore() if the
// embedding application has no durable store).
func NewManager(store Store) *Manager {
	return &Manager{
		Base:            plugin.Base{PluginName: "task-manager", PluginPriority: 100},
		store:           store,
		queue:           NewMessageQueue(),
		cancels:         make(map[string]context.CancelFunc),
		pending:         make(map[string]chan sideChannelResult),
		pendingTask:     make(map[string]string),
		defaultPageSize: 50,
		pollInterval:    DefaultServerPollInterval,
	}
}

// SetPollInterval overrides the poll hint advertised to clients.
func (m *Manager) SetPollInterval(d time.Duration) {
	if d > 0 {
		m.pollInterval = d
	}
}

// summarize builds the wire summary for t, attaching the poll hint only
// while the task can still change.
func (m *Manager) summarize(t *Task) TaskSummary {
	s := TaskSummary{TaskID: t.ID, Status: t.Status}
	if !t.Status.IsTerminal() {
		s.PollIntervalMillis = m.pollInterval.Milliseconds()
	}
	return s
}

// Install registers the four task-retrieval methods through the
// plugin.Handlers narrow surface, unlike WrapHandler below which wraps a
// full protocol.RequestHandler directly. It also captures the engine's
// Sender so handleResult can perform the actual delivery of messages a
// task handler queued instead of writing straight to the transport.
func (m *Manager) Install(ctx plugin.Context) error {
	h := ctx.Handlers()
	h.SetRequestHandler("tasks/get", m.handleGet)
	h.SetRequestHandler("tasks/result", m.handleResult)
	h.SetRequestHandler("tasks/list", m.handleList)
	h.SetRequestHandler("tasks/cancel", m.handleCancel)
	m.sink = ctx.Transport()
	return nil
}

// SideChannel returns the Sender a task handler should use for any
// sendRequest/sendNotification it issues while running: if ctx carries a
// task id, the message is queued for the next tasks/result long-poll
// instead of sent directly; otherwise it is forwarded unchanged to real.
func (m *Manager) SideChannel(real plugin.Sender) plugin.Sender {
	return &sideChannelSender{manager: m, real: real}
}

type sideChannelSender struct {
	manager *Manager
	real    plugin.Sender
}

func (s *sideChannelSender) SendRequest(ctx context.Context, method string, params interface{}, opts plugin.RequestOptions) (json.RawMessage, error) {
	taskID, ok := FromContext(ctx)
	if !ok {
		return s.real.SendRequest(ctx, method, params, opts)
	}
	return s.manager.enqueueRequest(ctx, taskID, method, params)
}

func (s *sideChannelSender) SendNotification(ctx context.Context, method string, params interface{}, opts plugin.RequestOptions) error {
	taskID, ok := FromContext(ctx)
	if !ok {
		return s.real.SendNotification(ctx, method, params, opts)
	}
	return s.manager.enqueueNotification(taskID, method, params)
}

func (m *Manager) enqueueRequest(ctx context.Context, taskID, method string, params interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, errors.Wrap(err, "task: marshaling queued request params")
	}
	correlationID := NewTaskID()
	waiter := make(chan sideChannelResult, 1)
	m.mu.Lock()
	m.pending[correlationID] = waiter
	m.pendingTask[correlationID] = taskID
	m.mu.Unlock()

	// The task is now blocked on the client answering; surface that
	// through the status so pollers know to open tasks/result.
	m.setStatusIfRunning(taskID, StatusInputRequired)

	m.queue.Enqueue(taskID, QueuedMessage{
		Type: QueuedRequest, Method: method, Params: raw,
		CorrelationID: correlationID, Timestamp: time.Now(),
	})

	select {
	case res := <-waiter:
		m.setStatusIfRunning(taskID, StatusWorking)
		return res.result, res.err
	case <-ctx.Done():
		// A cancel rejects the waiter before aborting the handler's
		// context; prefer the rejection when both raced in.
		select {
		case res := <-waiter:
			return res.result, res.err
		default:
		}
		m.mu.Lock()
		delete(m.pending, correlationID)
		delete(m.pendingTask, correlationID)
		m.mu.Unlock()
		return nil, ctx.Err()
	}
}

// setStatusIfRunning flips a task between the two non-terminal states;
// terminal states are absorbing and never overwritten.
func (m *Manager) setStatusIfRunning(taskID string, status Status) {
	m.store.Update(taskID, func(t *Task) {
		if !t.Status.IsTerminal() {
			t.Status = status
		}
	})
}

func (m *Manager) enqueueNotification(taskID, method string, params interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(err, "task: marshaling queued notification params")
	}
	m.queue.Enqueue(taskID, QueuedMessage{Type: QueuedNotification, Method: method, Params: raw, Timestamp: time.Now()})
	return nil
}

// WrapHandler adapts inner to run as a background task whenever the
// incoming request carries params.task, returning a CreateTaskResult
// immediately and completing inner asynchronously. Requests without
// params.task pass through unchanged.
func (m *Manager) WrapHandler(method string, inner protocol.RequestHandler) protocol.RequestHandler {
	return func(hctx *protocol.HandlerContext, req *jsonrpc.Request) (interface{}, error) {
		ttlMillis, requested := parseTaskParams(req.Params)
		if !requested {
			return inner(hctx, req)
		}

		t := &Task{ID: NewTaskID(), Status: StatusWorking, CreatedAt: time.Now(), RelatedCall: method}
		if ttlMillis > 0 {
			t.TTL = time.Duration(ttlMillis) * time.Millisecond
		}
		if err := m.store.Create(t); err != nil {
			return nil, errors.Wrap(err, "task: creating task record")
		}

		bgCtx, cancel := context.WithCancel(WithTask(context.Background(), t.ID))
		m.mu.Lock()
		m.cancels[t.ID] = cancel
		m.mu.Unlock()

		bgHctx := &protocol.HandlerContext{
			Context:   bgCtx,
			SessionID: hctx.SessionID,
			RequestID: hctx.RequestID,
			Send:      m.SideChannel(hctx.Send),
			Values:    hctx.Values,
		}

		go m.run(t.ID, bgCtx, bgHctx, req, inner)

		return CreateTaskResult{Task: m.summarize(t)}, nil
	}
}

func (m *Manager) run(id string, ctx context.Context, hctx *protocol.HandlerContext, req *jsonrpc.Request, inner protocol.RequestHandler) {
	result, err := inner(hctx, req)

	m.mu.Lock()
	delete(m.cancels, id)
	m.mu.Unlock()

	m.store.Update(id, func(t *Task) {
		if t.Status.IsTerminal() {
			return
		}
		switch {
		case ctx.Err() == context.Canceled:
			t.Status = StatusCancelled
		case err != nil:
			t.Status = StatusFailed
			t.ResultError = err
		default:
			raw, marshalErr := json.Marshal(result)
			if marshalErr != nil {
				t.Status = StatusFailed
				t.ResultError = marshalErr
				return
			}
			t.Status = StatusCompleted
			t.Result = raw
		}
	})

	m.queue.Enqueue(id, QueuedMessage{Type: QueuedDone, Timestamp: time.Now()})
}

func parseTaskParams(params json.RawMessage) (ttlMillis int64, requested bool) {
	if len(params) == 0 {
		return 0, false
	}
	res := gjson.GetBytes(params, "task")
	if !res.Exists() {
		return 0, false
	}
	ttl := res.Get("ttl")
	if ttl.Exists() {
		return ttl.Int(), true
	}
	return 0, true
}

type taskIDParams struct {
	TaskID string `json:"taskId"`
}

func (m *Manager) handleGet(_ context.Context, req *jsonrpc.Request) (interface{}, error) {
	var params taskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, errors.Wrap(err, "task: decoding tasks/get params")
	}
	t, ok := m.store.Get(params.TaskID)
	if !ok {
		return nil, errors.Errorf("task: unknown task %q", params.TaskID)
	}
	return m.summarize(t), nil
}

// handleResult implements the tasks/result long-poll: it drains and
// actually delivers any side-channel requests/notifications a running
// task handler queued, blocking until the task reaches a terminal state
// if nothing is queued yet, then returns the stored result stamped with
// _meta.mcp/relatedTask.taskId.
func (m *Manager) handleResult(ctx context.Context, req *jsonrpc.Request) (interface{}, error) {
	var params taskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, errors.Wrap(err, "task: decoding tasks/result params")
	}

	for {
		t, ok := m.store.Get(params.TaskID)
		if !ok {
			return nil, errors.Errorf("task: unknown task %q", params.TaskID)
		}
		if t.Status.IsTerminal() {
			m.dispatchQueued(ctx, params.TaskID, m.queue.Drain(params.TaskID))
			if t.Status == StatusFailed {
				return nil, t.ResultError
			}
			if t.Status == StatusCancelled {
				return nil, errors.Errorf("task: %q was cancelled", params.TaskID)
			}
			return stampRelatedTask(t.Result, params.TaskID), nil
		}
		if err := m.queue.Wait(ctx, params.TaskID); err != nil {
			return nil, err
		}
		m.dispatchQueued(ctx, params.TaskID, m.queue.Drain(params.TaskID))
	}
}

// dispatchQueued performs the real send, via the engine's Sender, for
// every request/notification a task handler queued instead of writing
// straight to the transport. Each dispatched message carries the
// relatedTask meta so the client can tie it back to the task. Requests
// resolve the caller blocked in enqueueRequest; the terminal QueuedDone
// sentinel is a no-op here, it only exists to wake MessageQueue.Wait.
func (m *Manager) dispatchQueued(ctx context.Context, taskID string, msgs []QueuedMessage) {
	opts := plugin.RequestOptions{RelatedTask: &plugin.TaskRef{TaskID: taskID}}
	for _, qm := range msgs {
		switch qm.Type {
		case QueuedRequest:
			result, err := m.sink.SendRequest(ctx, qm.Method, qm.Params, opts)
			m.mu.Lock()
			waiter, ok := m.pending[qm.CorrelationID]
			delete(m.pending, qm.CorrelationID)
			delete(m.pendingTask, qm.CorrelationID)
			m.mu.Unlock()
			if ok {
				waiter <- sideChannelResult{result: result, err: err}
			}
		case QueuedNotification:
			_ = m.sink.SendNotification(ctx, qm.Method, qm.Params, opts)
		case QueuedDone:
			// sentinel only
		}
	}
}

// stampRelatedTask attaches _meta.mcp/relatedTask.taskId to result when
// result is a JSON object; non-object results (e.g. a bare string or
// number) are returned unchanged since there is no object to add a
// field to.
func stampRelatedTask(result []byte, taskID string) json.RawMessage {
	if len(result) == 0 || result[0] != '{' {
		return json.RawMessage(result)
	}
	stamped, err := jsonrpc.WithRelatedTask(json.RawMessage(result), taskID)
	if err != nil {
		return json.RawMessage(result)
	}
	return stamped
}

type taskListParams struct {
	Cursor string `json:"cursor,omitempty"`
}

type taskListResult struct {
	Tasks      []TaskSummary `json:"tasks"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

func (m *Manager) handleList(_ context.Context, req *jsonrpc.Request) (interface{}, error) {
	var params taskListParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, errors.Wrap(err, "task: decoding tasks/list params")
		}
	}

	tasks, nextCursor, err := m.store.List(params.Cursor, m.defaultPageSize)
	if err != nil {
		return nil, err
	}
	summaries := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		summaries = append(summaries, m.summarize(t))
	}
	return taskListResult{Tasks: summaries, NextCursor: nextCursor}, nil
}

func (m *Manager) handleCancel(ctx context.Context, req *jsonrpc.Request) (interface{}, error) {
	var params taskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, errors.Wrap(err, "task: decoding tasks/cancel params")
	}

	t, ok := m.store.Get(params.TaskID)
	if !ok {
		return nil, errors.Errorf("task: unknown task %q", params.TaskID)
	}
	if t.Status.IsTerminal() {
		return m.summarize(t), nil
	}

	updated, err := m.store.Update(params.TaskID, func(tt *Task) { tt.Status = StatusCancelled })
	if err != nil {
		return nil, err
	}

	// Reject every side-channel request belonging to this task that a
	// handler is still waiting on, whether it is still sitting in the
	// queue or has already been drained and dispatched by a concurrent
	// tasks/result long-poll and is now blocked in m.sink.SendRequest.
	// This runs before the context abort so the blocked handler observes
	// the rejection rather than a bare context cancellation.
	m.queue.Drain(params.TaskID)
	m.rejectPendingForTask(params.TaskID)

	m.mu.Lock()
	cancel, hasCancel := m.cancels[params.TaskID]
	m.mu.Unlock()
	if hasCancel {
		cancel()
	}

	m.queue.Enqueue(params.TaskID, QueuedMessage{Type: QueuedDone, Timestamp: time.Now()})
	m.broadcastStatus(ctx, updated)
	return m.summarize(updated), nil
}

// broadcastStatus emits notifications/tasks/status for a task transition.
// Best effort: a peer that went away mid-cancel is not an error the
// cancel caller can act on.
func (m *Manager) broadcastStatus(ctx context.Context, t *Task) {
	if m.sink == nil {
		return
	}
	_ = m.sink.SendNotification(ctx, "notifications/tasks/status", m.summarize(t), plugin.RequestOptions{})
}

// rejectPendingForTask resolves every pending side-channel request
// waiter belonging to taskID with a cancellation error, regardless of
// whether the request is still queued or has already been dispatched
// and is awaiting a reply in m.sink.SendRequest. A handler blocked in
// enqueueRequest unblocks instead of hanging forever once its task is
// cancelled.
func (m *Manager) rejectPendingForTask(taskID string) {
	m.mu.Lock()
	var waiters []chan sideChannelResult
	for correlationID, owner := range m.pendingTask {
		if owner != taskID {
			continue
		}
		if waiter, ok := m.pending[correlationID]; ok {
			waiters = append(waiters, waiter)
			delete(m.pending, correlationID)
		}
		delete(m.pendingTask, correlationID)
	}
	m.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- sideChannelResult{err: mcperr.InternalError("Task cancelled or completed")}
	}
}
