package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWithHint(t *testing.T) {
	err := WithHint(New("bad extension"), "extensions must start with a dot")

	hints := GetAllHints(err)
	require.Len(t, hints, 1)
	assert.Equal(t, "extensions must start with a dot", hints[0])
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithHint(nil, "hint"))
}

func TestInvalidRequestError(t *testing.T) {
	err := NewInvalidRequestError("lsp.max_documents must be > 0, got %d", -1)

	assert.True(t, IsInvalidRequestError(err))
	assert.True(t, Is(err, ErrInvalidRequest))
	assert.Contains(t, err.Error(), "got -1")
	assert.False(t, IsInvalidRequestError(New("other")))
	assert.False(t, IsInvalidRequestError(nil))
}

func TestLimitReachedIsDistinct(t *testing.T) {
	err := Wrapf(ErrLimitReached, "document cache full (%d documents open)", 100)

	assert.True(t, Is(err, ErrLimitReached))
	assert.False(t, Is(err, ErrInvalidRequest))
}

func TestStackTrace(t *testing.T) {
	err := New("with stack")

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}

func ExampleWrap() {
	baseErr := New("address already in use")
	err := Wrap(baseErr, "failed to listen on 127.0.0.1:7997")
	fmt.Println(err)
	// Output: failed to listen on 127.0.0.1:7997: address already in use
}
