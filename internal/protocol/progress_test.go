package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressManager_DispatchInvokesRegisteredCallback(t *testing.T) {
	m := newProgressManager()
	var gotProgress int64
	m.registerHandler("req-1", func(progress int64, total *int64, message *string) {
		gotProgress = progress
	})

	m.dispatch("req-1", 42, nil, nil)
	assert.Equal(t, int64(42), gotProgress)
}

func TestProgressManager_DispatchUnknownIDIsNoop(t *testing.T) {
	m := newProgressManager()
	assert.NotPanics(t, func() { m.dispatch("missing", 1, nil, nil) })
}

func TestProgressManager_RemoveHandlerDropsIt(t *testing.T) {
	m := newProgressManager()
	called := false
	m.registerHandler("req-1", func(int64, *int64, *string) { called = true })
	m.removeHandler("req-1")

	m.dispatch("req-1", 1, nil, nil)
	assert.False(t, called)
}

// A retained handler survives the normal removeHandler call issued when
// the owning request's response arrives.
func TestProgressManager_RetainSurvivesCreateTaskResult(t *testing.T) {
	m := newProgressManager()
	var calls int
	m.registerHandler("req-1", func(int64, *int64, *string) { calls++ })

	m.retain("req-1")
	m.removeHandler("req-1") // normal response-path cleanup

	m.dispatch("req-1", 10, nil, nil)
	assert.Equal(t, 1, calls)
}

func TestProgressManager_ReleaseForgetsRetainedHandler(t *testing.T) {
	m := newProgressManager()
	var calls int
	m.registerHandler("req-1", func(int64, *int64, *string) { calls++ })
	m.retain("req-1")
	m.removeHandler("req-1")

	m.release("req-1")
	m.dispatch("req-1", 10, nil, nil)
	assert.Equal(t, 0, calls)
}

func TestProgressManager_ClearAll(t *testing.T) {
	m := newProgressManager()
	var calls int
	m.registerHandler("a", func(int64, *int64, *string) { calls++ })
	m.registerHandler("b", func(int64, *int64, *string) { calls++ })
	m.retain("a")

	m.clearAll()

	m.dispatch("a", 1, nil, nil)
	m.dispatch("b", 1, nil, nil)
	assert.Equal(t, 0, calls)
}
