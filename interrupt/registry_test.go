package interrupt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentrt/core/toolerrors"
)

func TestInterruptFiresCancelExactlyOnce(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())
	fireCount := 0
	r.Register("s1", func() {
		fireCount++
		cancel()
	})

	require.NoError(t, r.Interrupt("s1"))
	require.NoError(t, r.Interrupt("s1"))
	require.Equal(t, 1, fireCount)
	require.Error(t, ctx.Err())
}

func TestInterruptUnknownSessionReturnsNoSuchSession(t *testing.T) {
	r := New()
	err := r.Interrupt("missing")
	require.Error(t, err)
	require.True(t, toolerrors.Is(err, toolerrors.NoSuchSession))
}

func TestRemoveThenInterruptSucceedsIdempotently(t *testing.T) {
	r := New()
	r.Register("s1", func() {})
	r.Remove("s1")
	require.NoError(t, r.Interrupt("s1"))
	require.NoError(t, r.Interrupt("s1"))
}

func TestRegisterAfterRemoveClearsEndedMarker(t *testing.T) {
	r := New()
	r.Register("s1", func() {})
	r.Remove("s1")

	fireCount := 0
	r.Register("s1", func() { fireCount++ })
	require.NoError(t, r.Interrupt("s1"))
	require.Equal(t, 1, fireCount)
}
