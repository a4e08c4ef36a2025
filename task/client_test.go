package task

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/metoro-io/mcp-runtime-go/internal/protocol"
	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
	"github.com/metoro-io/mcp-runtime-go/plugin"
)

// scriptedSender answers a task-backed call, a fixed sequence of tasks/get
// polls, and a final tasks/result call, in that order, the way a real
// server would for spec.md §8 scenario S3.
type scriptedSender struct {
	createResult  json.RawMessage
	getResults    []json.RawMessage
	resultPayload json.RawMessage
	getCalls      int
}

func (s *scriptedSender) SendRequest(_ context.Context, method string, _ interface{}, _ *protocol.RequestOptions) (json.RawMessage, error) {
	switch method {
	case "tasks/get":
		idx := s.getCalls
		s.getCalls++
		if idx < len(s.getResults) {
			return s.getResults[idx], nil
		}
		return s.getResults[len(s.getResults)-1], nil
	case "tasks/result":
		return s.resultPayload, nil
	default:
		return s.createResult, nil
	}
}

// TestRequestStream_EmitsOneStatusEventPerPoll reproduces spec.md §8
// scenario S3 literally: "Polls: status working -> working -> completed"
// yields taskCreated, taskStatus x3, result — one EventStatus per poll,
// not one per distinct value observed.
func TestRequestStream_EmitsOneStatusEventPerPoll(t *testing.T) {
	sender := &scriptedSender{
		createResult: json.RawMessage(`{"task":{"taskId":"t_1","status":"working","pollInterval":5}}`),
		getResults: []json.RawMessage{
			json.RawMessage(`{"taskId":"t_1","status":"working"}`),
			json.RawMessage(`{"taskId":"t_1","status":"working"}`),
			json.RawMessage(`{"taskId":"t_1","status":"completed"}`),
		},
		resultPayload: json.RawMessage(`{"content":[{"type":"text","text":"ok"}],"_meta":{"mcp/relatedTask":{"taskId":"t_1"}}}`),
	}

	events, err := requestStream(context.Background(), sender, nil, "tools/call", map[string]string{"name": "job"}, nil, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("requestStream: %v", err)
	}

	var kinds []EventKind
	var statuses []Status
	for ev := range events {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventStatus {
			statuses = append(statuses, ev.Status)
		}
	}

	wantKinds := []EventKind{EventCreated, EventStatus, EventStatus, EventStatus, EventResult}
	if len(kinds) != len(wantKinds) {
		t.Fatalf("event kinds = %v, want %v", kinds, wantKinds)
	}
	for i, k := range wantKinds {
		if kinds[i] != k {
			t.Fatalf("events[%d] = %v, want %v", i, kinds[i], k)
		}
	}

	wantStatuses := []Status{StatusWorking, StatusWorking, StatusCompleted}
	if len(statuses) != len(wantStatuses) {
		t.Fatalf("taskStatus sequence = %v, want %v", statuses, wantStatuses)
	}
	for i, want := range wantStatuses {
		if statuses[i] != want {
			t.Fatalf("statuses[%d] = %v, want %v", i, statuses[i], want)
		}
	}
}

// TestRequestStream_TaskReferenceMissingFails covers the error path when
// the create response carries no task reference at all.
func TestRequestStream_TaskReferenceMissingFails(t *testing.T) {
	sender := &scriptedSender{createResult: json.RawMessage(`{}`)}
	if _, err := requestStream(context.Background(), sender, nil, "tools/call", nil, nil, 5*time.Millisecond); err == nil {
		t.Fatal("expected an error when the create response carries no task reference")
	}
}

// recordingReleaser records every ReleaseForTask call RequestStream makes.
type recordingReleaser struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingReleaser) ReleaseForTask(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, taskID)
}

// TestRequestStream_ReleasesProgressOnceTerminal covers the fix for
// invariant (4): a retained progress handler must not outlive the task
// it was retained for, so RequestStream must tell its Releaser once the
// task reaches a terminal state (here, via the tasks/result response).
func TestRequestStream_ReleasesProgressOnceTerminal(t *testing.T) {
	sender := &scriptedSender{
		createResult: json.RawMessage(`{"task":{"taskId":"t_1","status":"working","pollInterval":5}}`),
		getResults: []json.RawMessage{
			json.RawMessage(`{"taskId":"t_1","status":"completed"}`),
		},
		resultPayload: json.RawMessage(`{"content":[],"_meta":{"mcp/relatedTask":{"taskId":"t_1"}}}`),
	}
	releaser := &recordingReleaser{}

	events, err := requestStream(context.Background(), sender, releaser, "tools/call", nil, nil, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("requestStream: %v", err)
	}
	for range events {
	}

	if len(releaser.calls) != 1 || releaser.calls[0] != "t_1" {
		t.Fatalf("ReleaseForTask calls = %v, want [t_1]", releaser.calls)
	}
}

// fakeProgress is a minimal plugin.Progress double that records retain
// and release calls by request id.
type fakeProgress struct {
	retained []jsonrpc.RequestID
	released []jsonrpc.RequestID
}

func (f *fakeProgress) RetainProgressHandler(id jsonrpc.RequestID)  { f.retained = append(f.retained, id) }
func (f *fakeProgress) ReleaseProgressHandler(id jsonrpc.RequestID) { f.released = append(f.released, id) }

// fakePluginContext exposes only Progress(); the other plugin.Context
// accessors are unused by ClientPlugin.Install/OnResponse.
type fakePluginContext struct {
	progress plugin.Progress
}

func (f *fakePluginContext) Transport() plugin.Sender     { return nil }
func (f *fakePluginContext) Handlers() plugin.Handlers    { return nil }
func (f *fakePluginContext) Resolvers() plugin.Resolvers  { return nil }
func (f *fakePluginContext) Progress() plugin.Progress    { return f.progress }
func (f *fakePluginContext) ReportError(error)            {}

// TestClientPlugin_ReleaseForTaskReleasesRetainedHandler exercises the
// ClientPlugin half of the fix directly: OnResponse retains the
// create-request's progress handler and remembers which task it belongs
// to, and ReleaseForTask later looks that request id back up and
// releases it.
func TestClientPlugin_ReleaseForTaskReleasesRetainedHandler(t *testing.T) {
	progress := &fakeProgress{}
	ctx := &fakePluginContext{progress: progress}

	c := NewClientPlugin()
	if err := c.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}

	req := &jsonrpc.Request{ID: jsonrpc.NewNumberID(7)}
	c.OnResponse(ctx, req, json.RawMessage(`{"task":{"taskId":"t_1","status":"working"}}`))

	if len(progress.retained) != 1 || progress.retained[0] != req.ID {
		t.Fatalf("retained = %v, want [%v]", progress.retained, req.ID)
	}

	c.ReleaseForTask("t_1")

	if len(progress.released) != 1 || progress.released[0] != req.ID {
		t.Fatalf("released = %v, want [%v]", progress.released, req.ID)
	}
}
