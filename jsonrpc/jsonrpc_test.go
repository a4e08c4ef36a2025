package jsonrpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDRoundTrip(t *testing.T) {
	num := NewNumberID(42)
	b, err := json.Marshal(num)
	require.NoError(t, err)
	assert.Equal(t, "42", string(b))

	var decoded RequestID
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.False(t, decoded.IsString())
	assert.Equal(t, int64(42), decoded.Int64())

	str := NewStringID("abc-1")
	b, err = json.Marshal(str)
	require.NoError(t, err)
	assert.Equal(t, `"abc-1"`, string(b))

	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.True(t, decoded.IsString())
	assert.Equal(t, "s:abc-1", decoded.String())
}

func TestRequestIDUnmarshalInvalid(t *testing.T) {
	var id RequestID
	err := id.UnmarshalJSON([]byte("true"))
	assert.Error(t, err)
}

func TestRequestIDZero(t *testing.T) {
	var id RequestID
	assert.True(t, id.IsZero())
	assert.Equal(t, "", id.String())
}

func TestDecodeRequest(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping","params":{}}`)
	msg, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, KindRequest, msg.Kind)
	assert.Equal(t, "ping", msg.Request.Method)
	assert.False(t, msg.Request.ID.IsZero())
}

func TestDecodeNotification(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":1}}`)
	msg, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, KindNotification, msg.Kind)
	assert.Equal(t, "notifications/cancelled", msg.Notification.Method)
}

func TestDecodeResponse(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`)
	msg, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, KindResponse, msg.Kind)
	assert.JSONEq(t, `{"ok":true}`, string(msg.Response.Result))
}

func TestDecodeErrorResponse(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"not found"}}`)
	msg, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, KindErrorResponse, msg.Kind)
	assert.Equal(t, -32601, msg.Error.Error.Code)
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"jsonrpc":"2.0"}`))
	assert.Error(t, err)
}

func TestEncodeRoundTrip(t *testing.T) {
	req := &Request{JSONRPC: Version, ID: NewNumberID(7), Method: "tools/call"}
	b, err := Encode(&Message{Kind: KindRequest, Request: req})
	require.NoError(t, err)

	msg, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, "tools/call", msg.Request.Method)
	assert.Equal(t, int64(7), msg.Request.ID.Int64())
}

func TestEncodeUnknownKind(t *testing.T) {
	_, err := Encode(&Message{Kind: MessageKind(99)})
	assert.Error(t, err)
}
