package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRejectsUnknownLevel(t *testing.T) {
	_, err := build("loud", false)
	assert.Error(t, err)
}

func TestBuildLevels(t *testing.T) {
	l, err := build("warn", true)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(-1)) // debug
	assert.True(t, l.Core().Enabled(1))   // warn
}

func TestNamedBeforeInit(t *testing.T) {
	assert.NotNil(t, Named("catalog"))
	assert.NoError(t, Sync())
}
