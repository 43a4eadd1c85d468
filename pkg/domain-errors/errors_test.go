package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeLookup(t *testing.T) {
	t.Run("finds code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeTerminalState, "issuer is permanently deactivated"))
		assert.True(t, HasCode(err, CodeTerminalState))
		assert.Equal(t, CodeTerminalState, CodeOf(err))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		err := errors.New("boom")
		assert.False(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})

	t.Run("nil never matches", func(t *testing.T) {
		assert.False(t, HasCode(nil, CodeNotFound))
	})
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeUnavailable, "ledger unavailable")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "ledger unavailable: connection refused", err.Error())
	assert.True(t, Is(err, CodeUnavailable))
}
