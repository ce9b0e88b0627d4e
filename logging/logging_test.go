package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	l, err := New(Config{Level: "debug", Format: "json", OutputPath: "stderr"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	// An unknown level falls back to info rather than failing.
	l, err = New(Config{Level: "loud", Format: "console"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
}

func TestEncoding(t *testing.T) {
	assert.Equal(t, "console", encoding("console"))
	assert.Equal(t, "console", encoding("text"))
	assert.Equal(t, "json", encoding("json"))
	assert.Equal(t, "json", encoding(""))
}

func TestDefaultAndSetDefault(t *testing.T) {
	assert.NotNil(t, Default())

	custom := zap.NewNop()
	SetDefault(custom)
	assert.Same(t, custom, Default())
}
