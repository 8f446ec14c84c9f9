package wire

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_OpenByDefault(t *testing.T) {
	g := NewGate()
	assert.False(t, g.Paused())
	require.NoError(t, g.Wait(context.Background()))
}

func TestGate_PauseBlocksUntilResume(t *testing.T) {
	g := NewGate()
	g.Pause()
	assert.True(t, g.Paused())

	released := make(chan error, 1)
	go func() {
		released <- g.Wait(context.Background())
	}()

	select {
	case <-released:
		t.Fatal("Wait returned while the gate was paused")
	case <-time.After(50 * time.Millisecond):
	}

	g.Resume()
	select {
	case err := <-released:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Resume")
	}
	assert.False(t, g.Paused())
}

func TestGate_WaitHonorsCancellation(t *testing.T) {
	g := NewGate()
	g.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	released := make(chan error, 1)
	go func() {
		released <- g.Wait(ctx)
	}()

	cancel()
	select {
	case err := <-released:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not observe cancellation")
	}
}

func TestGate_WaitChecksContextEvenWhenOpen(t *testing.T) {
	g := NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, g.Wait(ctx))
}

func TestGate_Idempotent(t *testing.T) {
	g := NewGate()
	g.Resume() // resume of an open gate is a no-op
	g.Pause()
	g.Pause()
	assert.True(t, g.Paused())
	g.Resume()
	g.Resume()
	assert.False(t, g.Paused())
	require.NoError(t, g.Wait(context.Background()))
}
