package middleware

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_OutgoingChainOrder(t *testing.T) {
	m := NewManager()
	var order []string

	require.NoError(t, m.UseOutgoing(func(ctx context.Context, method string, params json.RawMessage, next OutgoingNext) (json.RawMessage, error) {
		order = append(order, "first")
		return next(ctx, method, params)
	}))
	require.NoError(t, m.UseOutgoing(func(ctx context.Context, method string, params json.RawMessage, next OutgoingNext) (json.RawMessage, error) {
		order = append(order, "second")
		return next(ctx, method, params)
	}))

	_, err := m.WrapOutgoing(context.Background(), "tools/call", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestManager_IncomingOnionOrder(t *testing.T) {
	m := NewManager()
	var order []string
	for _, name := range []string{"1", "2"} {
		name := name
		require.NoError(t, m.UseIncoming(func(ctx context.Context, method string, params json.RawMessage, next IncomingNext) (interface{}, error) {
			order = append(order, "start_"+name)
			res, err := next()
			order = append(order, "end_"+name)
			return res, err
		}))
	}

	_, err := m.WrapIncoming(context.Background(), "tools/call", nil, func() (interface{}, error) {
		order = append(order, "handler")
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"start_1", "start_2", "handler", "end_2", "end_1"}, order)
}

func TestManager_IncomingDoubleNextDetected(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.UseIncoming(func(ctx context.Context, method string, params json.RawMessage, next IncomingNext) (interface{}, error) {
		if _, err := next(); err != nil {
			return nil, err
		}
		return next()
	}))

	_, err := m.WrapIncoming(context.Background(), "ping", nil, func() (interface{}, error) { return "ok", nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "next() called multiple times")
}

func TestManager_OperationScopedChainRunsOnlyForItsMethod(t *testing.T) {
	m := NewManager()
	ran := false
	require.NoError(t, m.UseOperation(OperationToolCall, func(ctx context.Context, method string, params json.RawMessage, next IncomingNext) (interface{}, error) {
		ran = true
		return next()
	}))

	_, err := m.WrapIncoming(context.Background(), "ping", nil, func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.False(t, ran, "operation-scoped middleware must not run for unrelated methods")

	_, err = m.WrapIncoming(context.Background(), "tools/call", nil, func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestManager_FreezeRejectsLateRegistration(t *testing.T) {
	m := NewManager()
	m.Freeze()
	err := m.UseOutgoing(func(ctx context.Context, method string, params json.RawMessage, next OutgoingNext) (json.RawMessage, error) {
		return next(ctx, method, params)
	})
	require.Error(t, err)
	assert.Equal(t, "Cannot register middleware after the server has started", err.Error())
}
