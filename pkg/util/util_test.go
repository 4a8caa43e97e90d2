package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCeilDiv(t *testing.T) {
	tests := []struct {
		a, b int64
		want int64
	}{
		{0, 100, 0},
		{1, 100, 1},
		{350, 100, 4},
		{700, 100, 7},
		{701, 100, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CeilDiv(tt.a, tt.b), "%d/%d", tt.a, tt.b)
	}
}

func TestOwnerCheck(t *testing.T) {
	off := NewOwnerCheck(false)
	assert.False(t, off.Enabled())

	on := NewOwnerCheck(true)
	require.True(t, on.Enabled())
	on.Check("same goroutine")

	done := make(chan any)
	go func() {
		defer func() {
			done <- recover()
		}()
		off.Check("disabled")
		on.Check("other goroutine")
	}()
	assert.NotNil(t, <-done)
}

func TestStl(t *testing.T) {
	data := []int{1, 2, 3}
	cp := CopyTo(data[1:])
	cp[0] = 9
	assert.Equal(t, 2, data[1])
	assert.Equal(t, []int{9, 3}, cp)
	assert.True(t, FileIsValid("util.go"))
	assert.False(t, FileIsValid("."))
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	Debug("spill", zap.Int("rows", 3))
	Warn("slow")
	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "spill", entry.Message)
	assert.Equal(t, int64(3), entry.ContextMap()["rows"])

	require.NoError(t, InitLogger("nonsense"))
	assert.True(t, gLogger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, gLogger.Core().Enabled(zapcore.DebugLevel))
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Spill.Enabled)
	assert.Equal(t, DefaultMaxMemoryRows, cfg.Spill.MaxMemoryRows)

	cfg.Datasets = append(cfg.Datasets, Dataset{Name: "nation"})
	_, ok := cfg.Dataset("nation")
	assert.True(t, ok)
	_, ok = cfg.Dataset("region")
	assert.False(t, ok)
}
