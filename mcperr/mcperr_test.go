package mcperr

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	e := MethodNotFound("tools/call")
	assert.Equal(t, CodeMethodNotFound, e.Code)
	assert.Contains(t, e.Error(), "tools/call")
}

func TestWithData(t *testing.T) {
	e := RequestTimeout("timed out").WithData(MaxTotalTimeoutExceeded{
		ElapsedMillis:         2600,
		MaxTotalTimeoutMillis: 2500,
	})
	assert.Equal(t, CodeRequestTimeout, e.Code)
	data, ok := e.Data.(MaxTotalTimeoutExceeded)
	assert.True(t, ok)
	assert.Equal(t, int64(2600), data.ElapsedMillis)
}

func TestAsErrorUnwrapsWrappedError(t *testing.T) {
	base := InvalidParams("bad shape")
	wrapped := errors.Wrap(base, "handling tools/call")

	found, ok := AsError(wrapped)
	assert.True(t, ok)
	assert.Same(t, base, found)
}

func TestAsErrorFalseForPlainError(t *testing.T) {
	_, ok := AsError(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestAsErrorFalseForNil(t *testing.T) {
	_, ok := AsError(nil)
	assert.False(t, ok)
}
