package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_Levels(t *testing.T) {
	for level, want := range map[string]zap.AtomicLevel{
		"debug": zap.NewAtomicLevelAt(zap.DebugLevel),
		"WARN":  zap.NewAtomicLevelAt(zap.WarnLevel),
		"bogus": zap.NewAtomicLevelAt(zap.InfoLevel),
	} {
		l, err := New(level, false)
		require.NoError(t, err)
		require.True(t, l.Core().Enabled(want.Level()))
		require.False(t, l.Core().Enabled(want.Level()-1))
	}
}
