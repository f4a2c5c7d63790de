package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsExposed(t *testing.T) {
	plain := errors.New("db: connection refused")
	exposed := New("No access")
	wrapped := fmt.Errorf("resolve: %w", exposed)

	assert.False(t, IsExposed(plain))
	assert.False(t, IsExposed(nil))
	assert.True(t, IsExposed(exposed))
	assert.True(t, IsExposed(wrapped))

	assert.Equal(t, MaskedMessage, Message(plain))
	assert.Equal(t, "No access", Message(exposed))
	assert.Equal(t, "resolve: No access", Message(wrapped))
	assert.Equal(t, "", Message(nil))
}

func TestExtended(t *testing.T) {
	ext := map[string]any{"code": "FORBIDDEN"}
	err := Extended("denied", ext)
	ext["code"] = "changed"

	assert.Equal(t, map[string]any{"code": "FORBIDDEN"}, err.Extensions())
	assert.Nil(t, New("x").Extensions())
}
