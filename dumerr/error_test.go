package dumerr

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCapturesCallSite(t *testing.T) {
	err := New(CategoryState, "shutdown already requested")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "error_test.go"))
	assert.True(t, Is(err, CategoryState))
	assert.False(t, Is(err, CategoryProtocol))
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("backing store closed")
	err := Wrap(CategoryConfig, "failed to load master profile", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, strings.Contains(err.Error(), cause.Error()))
}
