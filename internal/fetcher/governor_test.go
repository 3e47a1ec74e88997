package fetcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGovernor_Pause(t *testing.T) {
	g := NewGovernor(GovernorConfig{
		LotPause:         time.Second,
		EventPause:       2 * time.Second,
		InstitutionPause: 3 * time.Second,
	})

	var slept []time.Duration
	g.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	ctx := context.Background()
	require.NoError(t, g.Pause(ctx, TierLot))
	require.NoError(t, g.Pause(ctx, TierEvent))
	require.NoError(t, g.Pause(ctx, TierInstitution))

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, slept)
	assert.Equal(t, 2*time.Second, g.PauseFor(TierEvent))
}

func TestGovernor_PauseCancelled(t *testing.T) {
	g := NewGovernor(GovernorConfig{LotPause: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Pause(ctx, TierLot)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGovernor_ZeroPause(t *testing.T) {
	g := NewGovernor(GovernorConfig{})
	assert.NoError(t, g.Pause(context.Background(), TierInstitution))
}

func TestGovernor_WaitSpacesRequests(t *testing.T) {
	g := NewGovernor(GovernorConfig{MinInterval: 40 * time.Millisecond})
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		require.NoError(t, g.Wait(ctx))
	}
	// Burst of one: the second and third waits are each spaced by the interval.
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestGovernor_WaitSharedAcrossGoroutines(t *testing.T) {
	g := NewGovernor(GovernorConfig{MinInterval: 20 * time.Millisecond})
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.Wait(ctx))
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestGovernor_Unlimited(t *testing.T) {
	g := NewGovernor(GovernorConfig{})
	start := time.Now()
	for range 100 {
		require.NoError(t, g.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), time.Second)
}
