package tools

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextResponseContentMarshal(t *testing.T) {
	c := NewToolTextResponseContent("hello")
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hello","type":"text"}`, string(b))
}

func TestTextResponseContentWithAnnotations(t *testing.T) {
	priority := 0.5
	c := NewToolTextResponseContent("hello").WithAnnotations(ContentAnnotations{
		Audience: []Role{RoleAssistant},
		Priority: &priority,
	})
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hello","type":"text","annotations":{"audience":["assistant"],"priority":0.5}}`, string(b))
}

func TestImageResponseContentMarshal(t *testing.T) {
	c := NewToolImageResponseContent("base64data", "image/png")
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":"base64data","mimeType":"image/png","type":"image"}`, string(b))
}

func TestBlobResourceResponseContentMarshal(t *testing.T) {
	c := NewToolBlobResourceResponseContent("file:///a", "YmFzZTY0", "application/octet-stream")
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"blob":"YmFzZTY0","mimeType":"application/octet-stream","uri":"file:///a","type":"resource"}`, string(b))
}

func TestTextResourceResponseContentMarshal(t *testing.T) {
	c := NewToolTextResourceResponseContent("file:///a", "body", "text/plain")
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"body","mimeType":"text/plain","uri":"file:///a","type":"resource"}`, string(b))
}

func TestUnknownContentTypeMarshalFails(t *testing.T) {
	c := &ToolResponseContent{Type: ContentType("bogus")}
	_, err := json.Marshal(c)
	assert.Error(t, err)
}

func TestToolResponseSentSuccess(t *testing.T) {
	resp := NewToolResponseSent(NewToolResponse(NewToolTextResponseContent("ok")))
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[{"text":"ok","type":"text"}],"isError":false}`, string(b))
}

func TestToolResponseSentError(t *testing.T) {
	resp := NewToolResponseSentError(errors.New("boom"))
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[{"text":"boom","type":"text"}],"isError":true}`, string(b))
}
