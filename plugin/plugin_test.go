package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseSatisfiesPlugin(t *testing.T) {
	var _ Plugin = Base{}
}

func TestBaseDefaultsPassThrough(t *testing.T) {
	b := Base{PluginName: "noop", PluginPriority: 5}
	assert.Equal(t, "noop", b.Name())
	assert.Equal(t, 5, b.Priority())
	assert.False(t, b.ShouldRouteMessage(nil, RequestOptions{}))

	res, err := b.RouteMessage(nil, nil, RequestOptions{})
	assert.NoError(t, err)
	assert.Nil(t, res)

	assert.Equal(t, HookResult{}, b.OnRequest(nil, nil))
	assert.Equal(t, HookResult{}, b.OnBeforeSendRequest(nil, nil, RequestOptions{}))
}

func TestHandlerContextValueLookup(t *testing.T) {
	type key struct{}

	hctx := &HandlerContext{
		Context: context.Background(),
		Values:  map[interface{}]interface{}{key{}: "attached"},
	}
	assert.Equal(t, "attached", hctx.Value(key{}))
}

func TestHandlerContextValueNilMap(t *testing.T) {
	hctx := &HandlerContext{Context: context.Background()}
	assert.Nil(t, hctx.Value("missing"))
}
