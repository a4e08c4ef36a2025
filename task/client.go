package task

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/metoro-io/mcp-runtime-go/internal/protocol"
	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
	"github.com/metoro-io/mcp-runtime-go/plugin"
)

// DefaultPollInterval is how often RequestStream polls tasks/get while a
// task is still working, absent an explicit interval.
const DefaultPollInterval = 500 * time.Millisecond

// ClientPlugin is the client-side half of the task subsystem: it stamps
// params.task onto outgoing requests that asked for task execution
// (RequestOptions.Task) and retains the progress handler for a request
// whose response turns out to be a CreateTaskResult, so progress
// notifications keyed by the original progress token keep arriving after
// the initial response.
type ClientPlugin struct {
	plugin.Base

	mu       sync.Mutex
	progress plugin.Progress
	pending  map[string]jsonrpc.RequestID // taskID -> the create-request's id, for ReleaseForTask
}

// NewClientPlugin builds a ClientPlugin.
func NewClientPlugin() *ClientPlugin {
	return &ClientPlugin{
		Base:    plugin.Base{PluginName: "task-client", PluginPriority: 100},
		pending: make(map[string]jsonrpc.RequestID),
	}
}

// Install captures the engine's Progress capability so ReleaseForTask can
// be called later, outside of any hook invocation, once RequestStream
// observes the task reach a terminal state.
func (c *ClientPlugin) Install(ctx plugin.Context) error {
	c.progress = ctx.Progress()
	return nil
}

func (c *ClientPlugin) OnBeforeSendRequest(_ plugin.Context, req *jsonrpc.Request, opts plugin.RequestOptions) plugin.HookResult {
	if opts.Task == nil {
		return plugin.HookResult{}
	}

	params := req.Params
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	path := "task"
	if opts.Task.TTLMillis != nil {
		params2, err := sjson.SetBytes(params, path+".ttl", *opts.Task.TTLMillis)
		if err != nil {
			return plugin.HookResult{Err: errors.Wrap(err, "task: stamping params.task.ttl")}
		}
		params = params2
	} else {
		params2, err := sjson.SetRawBytes(params, path, []byte(`{}`))
		if err != nil {
			return plugin.HookResult{Err: errors.Wrap(err, "task: stamping params.task")}
		}
		params = params2
	}

	out := *req
	out.Params = params
	return plugin.HookResult{Request: &out}
}

func (c *ClientPlugin) OnResponse(ctx plugin.Context, req *jsonrpc.Request, result json.RawMessage) plugin.HookResult {
	if taskID := createTaskResultID(result); taskID != "" {
		ctx.Progress().RetainProgressHandler(req.ID)
		c.mu.Lock()
		c.pending[taskID] = req.ID
		c.mu.Unlock()
	}
	return plugin.HookResult{}
}

// ReleaseForTask forgets the progress handler retained for taskID's
// create-request, once its task has reached a terminal state: per spec
// invariant (4), progress handlers survive UNTIL the task terminates,
// not for the life of the connection.
func (c *ClientPlugin) ReleaseForTask(taskID string) {
	c.mu.Lock()
	reqID, ok := c.pending[taskID]
	delete(c.pending, taskID)
	c.mu.Unlock()
	if ok && c.progress != nil {
		c.progress.ReleaseProgressHandler(reqID)
	}
}

func createTaskResultID(result json.RawMessage) string {
	if len(result) == 0 {
		return ""
	}
	return gjson.GetBytes(result, "task.taskId").String()
}

// EventKind enumerates the lifecycle events RequestStream emits.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventStatus  EventKind = "status"
	EventResult  EventKind = "result"
	EventError   EventKind = "error"
)

// Event is one point in a task's observed lifecycle.
type Event struct {
	Kind   EventKind
	TaskID string
	Status Status
	Result json.RawMessage
	Err    error
}

// Sender is the narrow capability RequestStream needs: exactly
// *internal/protocol.Protocol's SendRequest method shape, kept as an
// interface so this package never imports a concrete engine type beyond
// protocol.RequestOptions.
type Sender interface {
	SendRequest(ctx context.Context, method string, params interface{}, opts *protocol.RequestOptions) (json.RawMessage, error)
}

// Releaser lets RequestStream give up a retained progress handler once
// it observes the task reach a terminal state. *ClientPlugin implements
// this; pass nil when the caller never registered a progress callback
// (there is then nothing to release).
type Releaser interface {
	ReleaseForTask(taskID string)
}

// RequestStream issues method with params as a task-backed call (caller
// must NOT set opts.Task itself) and returns a channel of lifecycle
// events: one EventCreated, an EventStatus for every tasks/get poll
// (repeated statuses included), then a terminal EventResult or
// EventError once the task lands on tasks/result. The channel is closed
// after the terminal event, and releaser.ReleaseForTask (if releaser is
// non-nil) is called just before that close. It polls every
// DefaultPollInterval unless the create result carries a
// task.pollInterval hint.
func RequestStream(ctx context.Context, sender Sender, releaser Releaser, method string, params interface{}, ttlMillis *int64) (<-chan Event, error) {
	return requestStream(ctx, sender, releaser, method, params, ttlMillis, DefaultPollInterval)
}

func requestStream(ctx context.Context, sender Sender, releaser Releaser, method string, params interface{}, ttlMillis *int64, pollInterval time.Duration) (<-chan Event, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	createResult, err := sender.SendRequest(ctx, method, params, &protocol.RequestOptions{
		Task: &plugin.TaskOptions{TTLMillis: ttlMillis},
	})
	if err != nil {
		return nil, err
	}

	taskID := gjson.GetBytes(createResult, "task.taskId").String()
	if taskID == "" {
		return nil, errors.Errorf("task: response to %q did not carry a task reference", method)
	}
	if hint := gjson.GetBytes(createResult, "task.pollInterval").Int(); hint > 0 {
		pollInterval = time.Duration(hint) * time.Millisecond
	}

	events := make(chan Event, 4)
	events <- Event{Kind: EventCreated, TaskID: taskID, Status: StatusWorking}

	go func() {
		defer close(events)
		defer func() {
			if releaser != nil {
				releaser.ReleaseForTask(taskID)
			}
		}()

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				events <- Event{Kind: EventError, TaskID: taskID, Err: ctx.Err()}
				return
			case <-ticker.C:
			}

			raw, err := sender.SendRequest(ctx, "tasks/get", taskIDParams{TaskID: taskID}, nil)
			if err != nil {
				events <- Event{Kind: EventError, TaskID: taskID, Err: err}
				return
			}
			var summary TaskSummary
			if err := json.Unmarshal(raw, &summary); err != nil {
				events <- Event{Kind: EventError, TaskID: taskID, Err: err}
				return
			}
			// Every poll yields its own EventStatus, not just ones whose
			// value differs from the last poll: spec.md §8 scenario S3
			// observes three status events for working -> working ->
			// completed, one per poll regardless of repetition.
			events <- Event{Kind: EventStatus, TaskID: taskID, Status: summary.Status}

			// input_required and any terminal status both mean there is
			// something to retrieve: fall through to the tasks/result
			// long-poll, which also carries elicitation requests queued
			// while the task runs.
			if summary.Status == StatusInputRequired || summary.Status.IsTerminal() {
				result, err := sender.SendRequest(ctx, "tasks/result", taskResultParams{TaskID: taskID}, nil)
				if err != nil {
					events <- Event{Kind: EventError, TaskID: taskID, Err: err}
					return
				}
				events <- Event{Kind: EventResult, TaskID: taskID, Status: summary.Status, Result: result}
				return
			}
		}
	}()

	return events, nil
}

type taskResultParams struct {
	TaskID string `json:"taskId"`
}
