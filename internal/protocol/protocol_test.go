package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
	"github.com/metoro-io/mcp-runtime-go/mcperr"
)

func TestProtocol_Connect(t *testing.T) {
	p := New(Options{})
	tr := newMockTransport()

	if err := p.Connect(context.Background(), tr); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !tr.isStarted() {
		t.Error("transport was not started")
	}
}

func TestProtocol_Close(t *testing.T) {
	p := New(Options{})
	tr := newMockTransport()

	if err := p.Connect(context.Background(), tr); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	closeCalled := false
	p.OnClose = func() { closeCalled = true }

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !tr.isClosed() {
		t.Error("transport was not closed")
	}
	if !closeCalled {
		t.Error("OnClose callback was not called")
	}
}

func TestProtocol_Request_Success(t *testing.T) {
	p := New(Options{})
	tr := newMockTransport()
	if err := p.Connect(context.Background(), tr); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		msgs := tr.getMessages()
		if len(msgs) == 0 {
			t.Error("no messages sent")
			return
		}
		req := msgs[len(msgs)-1].Request
		resp := &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: req.ID, Result: json.RawMessage(`"test result"`)}
		tr.simulateMessage(&jsonrpc.Message{Kind: jsonrpc.KindResponse, Response: resp})
	}()

	result, err := p.SendRequest(context.Background(), "test_method", map[string]string{"key": "value"}, nil)
	if err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}
	if string(result) != `"test result"` {
		t.Errorf("expected result 'test result', got %s", result)
	}
}

func TestProtocol_Request_Timeout(t *testing.T) {
	p := New(Options{})
	tr := newMockTransport()
	if err := p.Connect(context.Background(), tr); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	opts := &RequestOptions{Timeout: 30 * time.Millisecond}
	_, err := p.SendRequest(context.Background(), "test_method", nil, opts)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
}

func TestProtocol_Request_Cancellation(t *testing.T) {
	p := New(Options{})
	tr := newMockTransport()
	if err := p.Connect(context.Background(), tr); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.SendRequest(ctx, "test_method", nil, nil)
	rpcErr, ok := mcperr.AsError(err)
	if !ok || rpcErr.Code != mcperr.CodeRequestCancelled {
		t.Fatalf("expected a request-cancelled error, got %v", err)
	}
}

func TestProtocol_Notification(t *testing.T) {
	p := New(Options{})
	tr := newMockTransport()
	if err := p.Connect(context.Background(), tr); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := p.SendNotification(context.Background(), "test_notification", map[string]string{"key": "value"}, nil); err != nil {
		t.Fatalf("SendNotification failed: %v", err)
	}

	msgs := tr.getMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Kind != jsonrpc.KindNotification {
		t.Fatal("message is not a notification")
	}
	if msgs[0].Notification.Method != "test_notification" {
		t.Errorf("expected method 'test_notification', got %v", msgs[0].Notification.Method)
	}
}

func TestProtocol_RequestHandler(t *testing.T) {
	p := New(Options{})
	tr := newMockTransport()
	if err := p.Connect(context.Background(), tr); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	handlerCalled := make(chan struct{}, 1)
	p.SetRequestHandler("test_method", func(hctx *HandlerContext, req *jsonrpc.Request) (interface{}, error) {
		handlerCalled <- struct{}{}
		return "handler result", nil
	})

	tr.simulateMessage(&jsonrpc.Message{
		Kind:    jsonrpc.KindRequest,
		Request: &jsonrpc.Request{JSONRPC: jsonrpc.Version, Method: "test_method", ID: jsonrpc.NewNumberID(1)},
	})

	select {
	case <-handlerCalled:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("request handler was not called")
	}

	waitForMessages(t, tr, 1)
	msgs := tr.getMessages()
	if msgs[0].Kind != jsonrpc.KindResponse {
		t.Fatal("message is not a response")
	}
	if string(msgs[0].Response.Result) != `"handler result"` {
		t.Errorf("expected result 'handler result', got %s", msgs[0].Response.Result)
	}
}

func TestProtocol_NotificationHandler(t *testing.T) {
	p := New(Options{})
	tr := newMockTransport()
	if err := p.Connect(context.Background(), tr); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	handlerCalled := make(chan struct{}, 1)
	p.SetNotificationHandler("test_notification", func(ctx context.Context, notif *jsonrpc.Notification) error {
		handlerCalled <- struct{}{}
		return nil
	})

	tr.simulateMessage(&jsonrpc.Message{
		Kind:         jsonrpc.KindNotification,
		Notification: &jsonrpc.Notification{JSONRPC: jsonrpc.Version, Method: "test_notification"},
	})

	select {
	case <-handlerCalled:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("notification handler was not called")
	}
}

func TestProtocol_Progress(t *testing.T) {
	p := New(Options{})
	tr := newMockTransport()
	if err := p.Connect(context.Background(), tr); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	progressReceived := make(chan int64, 1)
	opts := &RequestOptions{
		OnProgress: func(progress int64, total *int64, message *string) {
			progressReceived <- progress
		},
	}

	go func() {
		_, _ = p.SendRequest(context.Background(), "test_method", nil, opts)
	}()

	waitForMessages(t, tr, 1)
	req := tr.getMessages()[0].Request

	notifParams, err := json.Marshal(map[string]interface{}{
		"progressToken": req.ID.String(),
		"progress":      50,
		"total":         100,
	})
	if err != nil {
		t.Fatalf("marshaling progress params: %v", err)
	}
	tr.simulateMessage(&jsonrpc.Message{
		Kind:         jsonrpc.KindNotification,
		Notification: &jsonrpc.Notification{JSONRPC: jsonrpc.Version, Method: "notifications/progress", Params: notifParams},
	})

	select {
	case progress := <-progressReceived:
		if progress != 50 {
			t.Errorf("expected progress 50, got %d", progress)
		}
	case <-time.After(200 * time.Millisecond):
		t.Error("progress notification not received")
	}
}

func TestProtocol_ErrorHandling(t *testing.T) {
	p := New(Options{})
	tr := newMockTransport()
	if err := p.Connect(context.Background(), tr); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	errorReceived := make(chan error, 1)
	p.OnError = func(err error) { errorReceived <- err }

	testErr := errors.New("test error")
	tr.simulateError(testErr)

	select {
	case err := <-errorReceived:
		if err != testErr {
			t.Errorf("expected error %v, got %v", testErr, err)
		}
	case <-time.After(200 * time.Millisecond):
		t.Error("error not received")
	}
}

func TestProtocol_ConnectTwiceFails(t *testing.T) {
	p := New(Options{})
	if err := p.Connect(context.Background(), newMockTransport()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := p.Connect(context.Background(), newMockTransport()); err == nil {
		t.Fatal("expected second Connect to fail while a transport is attached")
	}
}

func TestProtocol_CloseRejectsAllWaiters(t *testing.T) {
	p := New(Options{})
	tr := newMockTransport()
	if err := p.Connect(context.Background(), tr); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	const inFlight = 3
	errs := make(chan error, inFlight)
	for i := 0; i < inFlight; i++ {
		go func() {
			_, err := p.SendRequest(context.Background(), "test_method", nil, nil)
			errs <- err
		}()
	}
	waitForMessages(t, tr, inFlight)

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for i := 0; i < inFlight; i++ {
		select {
		case err := <-errs:
			rpcErr, ok := mcperr.AsError(err)
			if !ok || rpcErr.Code != mcperr.CodeRequestCancelled {
				t.Fatalf("waiter %d: expected a request-cancelled error, got %v", i, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("waiter %d was not rejected on Close", i)
		}
	}
	if n := p.timeouts.size(); n != 0 {
		t.Fatalf("timeout entries after Close = %d, want 0", n)
	}
}

func waitForMessages(t *testing.T, tr *mockTransport, n int) {
	t.Helper()
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if len(tr.getMessages()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages", n)
}
