package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var start = time.Date(2024, 1, 2, 3, 4, 5, 678_901_000, time.FixedZone("X", 3600))

func TestDeterministicClock_StartsTruncatedUTC(t *testing.T) {
	clock := NewDeterministicClock(start)
	now := clock.Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Equal(t, 678_000_000, now.Nanosecond())
	assert.True(t, now.Equal(start.Truncate(time.Millisecond)))

	// Now does not advance
	assert.True(t, clock.Now().Equal(now))
}

func TestDeterministicClock_AdvanceAndReset(t *testing.T) {
	clock := NewDeterministicClock(start)
	first := clock.Now()

	got := clock.Advance(1500 * time.Microsecond)
	assert.Equal(t, time.Millisecond, got.Sub(first))
	assert.True(t, clock.Now().Equal(got))

	clock.Set(start.Add(time.Hour))
	assert.Equal(t, time.Hour, clock.Now().Sub(first))

	clock.Reset()
	assert.True(t, clock.Now().Equal(first))
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock(start)
	const numGoroutines = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			clock.Advance(time.Millisecond)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, numGoroutines*time.Millisecond, clock.Now().Sub(start.Truncate(time.Millisecond)))
}

func TestFixedRunID(t *testing.T) {
	assert.Equal(t, "run-1", FixedRunID("run-1").Generate())
	assert.Equal(t, "test-run", FixedRunID("").Generate())
}
