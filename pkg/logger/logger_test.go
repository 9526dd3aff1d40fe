package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("debug")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	c, err := New("error", "console")
	require.NoError(t, err)
	assert.False(t, c.Core().Enabled(zapcore.WarnLevel))
}
