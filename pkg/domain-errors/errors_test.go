package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches the outer code", func(t *testing.T) {
		err := New(CodeCloneDetected, "counter did not advance")
		assert.True(t, HasCode(err, CodeCloneDetected))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("matches a wrapped code deeper in the chain", func(t *testing.T) {
		inner := New(CodeStaleVersion, "version conflict")
		outer := Wrap(inner, CodeInternal, "recompute failed")
		assert.True(t, HasCode(outer, CodeStaleVersion))
		assert.True(t, HasCode(outer, CodeInternal))
	})

	t.Run("survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("handler: %w", New(CodeBudgetExhausted, "epsilon budget exceeded"))
		assert.True(t, HasCode(err, CodeBudgetExhausted))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeFrozenIdentity, CodeOf(New(CodeFrozenIdentity, "frozen")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeInternal, "store unavailable")
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "store unavailable")
}
