package job

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_SingleFlight(t *testing.T) {
	g := NewGuard()

	tok, err := g.TryAcquire("/videos/a.mp4", "job-1")
	require.NoError(t, err)
	assert.NotEmpty(t, tok.ID())

	state := g.State()
	assert.True(t, state.IsBusy)
	assert.Equal(t, "/videos/a.mp4", state.ActivePath)
	assert.Equal(t, "job-1", state.JobID)

	_, err = g.TryAcquire("/videos/b.mp4", "job-2")
	assert.ErrorIs(t, err, ErrAlreadyBusy)
	assert.Equal(t, state, g.State(), "first job state untouched")

	require.NoError(t, g.Release(tok))
	assert.Equal(t, State{}, g.State())
}

func TestGuard_ReleaseExactlyOnce(t *testing.T) {
	g := NewGuard()
	tok, err := g.TryAcquire("a", "job-1")
	require.NoError(t, err)

	require.NoError(t, g.Release(tok))
	assert.ErrorIs(t, g.Release(tok), ErrTokenReleased)

	next, err := g.TryAcquire("b", "job-2")
	require.NoError(t, err)
	assert.ErrorIs(t, g.Release(tok), ErrTokenReleased, "stale token cannot free a newer job")
	assert.True(t, g.State().IsBusy)
	require.NoError(t, g.Release(next))
}

func TestGuard_ReleaseForeignToken(t *testing.T) {
	g := NewGuard()
	other := NewGuard()

	foreign, err := other.TryAcquire("x", "job-x")
	require.NoError(t, err)

	assert.ErrorIs(t, g.Release(foreign), ErrTokenMismatch)
	assert.ErrorIs(t, g.Release(nil), ErrTokenMismatch)
}

func TestGuard_ManyCyclesLeakNothing(t *testing.T) {
	g := NewGuard()
	for i := 0; i < 100; i++ {
		tok, err := g.TryAcquire("a", "job")
		require.NoError(t, err)
		require.NoError(t, g.Release(tok))
	}
	assert.False(t, g.State().IsBusy)
}

func TestGuard_ConcurrentAcquire(t *testing.T) {
	g := NewGuard()

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := g.TryAcquire("a", "job"); err == nil {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}
