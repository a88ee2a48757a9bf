package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestFromContext_FallsBackToGlobal verifies a bare context yields the global logger.
func TestFromContext_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
}

// TestToContext_Roundtrip ensures a logger stored in the context is returned as-is.
func TestToContext_Roundtrip(t *testing.T) {
	t.Parallel()

	l := zap.NewNop().Sugar()
	ctx := ToContext(context.Background(), l)

	require.Same(t, l, FromContext(ctx))
}

// TestWithName_DerivesLogger checks WithName replaces the context logger with a named one.
func TestWithName_DerivesLogger(t *testing.T) {
	t.Parallel()

	ctx := ToContext(context.Background(), zap.NewNop().Sugar())
	named := WithName(ctx, "component")

	require.NotSame(t, FromContext(ctx), FromContext(named))
}
