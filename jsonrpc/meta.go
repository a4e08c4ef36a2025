package jsonrpc

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// RelatedTask reads the params._meta["mcp/relatedTask"].taskId field out
// of a raw params blob; the task subsystem uses it to associate a message
// with a task.
func RelatedTask(params json.RawMessage) (taskID string, ok bool) {
	if len(params) == 0 {
		return "", false
	}
	res := gjson.GetBytes(params, "_meta."+metaPath(RelatedTaskMetaKey)+".taskId")
	if !res.Exists() {
		return "", false
	}
	return res.String(), true
}

// WithRelatedTask stamps params._meta["mcp/relatedTask"] = {taskId} onto a
// raw params blob, injecting the field into the already-marshaled JSON
// rather than round-tripping through a generic map.
func WithRelatedTask(params json.RawMessage, taskID string) (json.RawMessage, error) {
	raw := params
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	out, err := sjson.SetBytes(raw, "_meta."+metaPath(RelatedTaskMetaKey)+".taskId", taskID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// metaPath escapes a meta key containing '/' for sjson's dotted path syntax.
func metaPath(key string) string {
	escaped := make([]byte, 0, len(key)+4)
	for i := 0; i < len(key); i++ {
		if key[i] == '.' || key[i] == '/' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, key[i])
	}
	return string(escaped)
}

// ProgressToken reads params._meta.progressToken.
func ProgressToken(params json.RawMessage) (string, bool) {
	if len(params) == 0 {
		return "", false
	}
	res := gjson.GetBytes(params, "_meta.progressToken")
	if !res.Exists() {
		return "", false
	}
	return res.String(), true
}

// WithProgressToken stamps params._meta.progressToken = token.
func WithProgressToken(params json.RawMessage, token string) (json.RawMessage, error) {
	raw := params
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	return sjson.SetBytes(raw, "_meta.progressToken", token)
}
