package stdio

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
	"github.com/metoro-io/mcp-runtime-go/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_BasicMessageHandling(t *testing.T) {
	in := &bytes.Buffer{}
	out := &bytes.Buffer{}
	tr := NewWithIO(in, out)

	var received *jsonrpc.Message
	var wg sync.WaitGroup
	wg.Add(1)
	tr.SetMessageHandler(func(msg *jsonrpc.Message, _ *transport.Extra) {
		received = msg
		wg.Done()
	})

	// Buffer the frame before Start: a bytes.Buffer reports EOF once
	// drained, so the read loop must find the message on its first pass.
	_, err := in.Write([]byte(`{"jsonrpc": "2.0", "method": "test", "params": {}, "id": 1}` + "\n"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, tr.Start(ctx))

	waitOrTimeout(t, &wg)

	require.Equal(t, jsonrpc.KindRequest, received.Kind)
	assert.Equal(t, "test", received.Request.Method)
	assert.Equal(t, int64(1), received.Request.ID.Int64())

	assert.NoError(t, tr.Close())
}

func TestTransport_DoubleStartFails(t *testing.T) {
	in := &bytes.Buffer{}
	out := &bytes.Buffer{}
	tr := NewWithIO(in, out)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx))
	err := tr.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
	assert.NoError(t, tr.Close())
}

func TestTransport_SendMessage(t *testing.T) {
	in := &bytes.Buffer{}
	out := &bytes.Buffer{}
	tr := NewWithIO(in, out)

	msg := &jsonrpc.Message{
		Kind: jsonrpc.KindResponse,
		Response: &jsonrpc.Response{
			JSONRPC: jsonrpc.Version,
			ID:      jsonrpc.NewNumberID(1),
			Result:  []byte(`{"status":"ok"}`),
		},
	}

	require.NoError(t, tr.Send(context.Background(), msg, nil))
	assert.Contains(t, out.String(), `"status":"ok"`)
	assert.Contains(t, out.String(), "\n")
}

func TestTransport_ErrorHandling(t *testing.T) {
	in := &bytes.Buffer{}
	out := &bytes.Buffer{}
	tr := NewWithIO(in, out)

	var receivedErr error
	var wg sync.WaitGroup
	wg.Add(1)
	tr.SetErrorHandler(func(err error) {
		receivedErr = err
		wg.Done()
	})

	_, err := in.Write([]byte(`{"invalid json` + "\n"))
	require.NoError(t, err)

	require.NoError(t, tr.Start(context.Background()))

	waitOrTimeout(t, &wg)
	require.Error(t, receivedErr)

	assert.NoError(t, tr.Close())
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for condition")
	}
}
