package collector

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/calbuddy/internal/models"
)

func TestReport(t *testing.T) {
	rate := Report(10, 40, 4, 20)
	assert.InDelta(t, 0.5, rate.JobsPerSec, 1e-9)
	assert.InDelta(t, 8.0, rate.SecPerJob, 1e-9)
	assert.InDelta(t, 240.0, rate.ETASeconds, 1e-9)

	assert.Equal(t, Rate{}, Report(0, 40, 4, 20))
	assert.Equal(t, Rate{}, Report(10, 40, 4, 0))

	done := Report(40, 40, 4, 80)
	assert.Zero(t, done.ETASeconds)
}

func TestRunState_ConcurrentCompletion(t *testing.T) {
	const workers, perWorker = 8, 25
	state := NewRunState("run-1", workers*perWorker, workers)

	var wg sync.WaitGroup
	seen := make(chan int, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				job := models.JobMetadata{ID: "x"}
				var snapshot models.ProgressSnapshot
				if i%5 == 0 {
					snapshot = state.Complete(nil, &models.IncompleteJob{JobMetadata: job, FailureReason: "boom"})
				} else {
					snapshot = state.Complete(&models.JobResult{ID: job.ID}, nil)
				}
				seen <- snapshot.Completed
			}
		}(w)
	}
	wg.Wait()
	close(seen)

	// Every increment is observed exactly once
	counts := make(map[int]int)
	for c := range seen {
		counts[c]++
	}
	require.Len(t, counts, workers*perWorker)
	for c := 1; c <= workers*perWorker; c++ {
		assert.Equal(t, 1, counts[c])
	}

	results, incomplete := state.Results()
	assert.Len(t, results, workers*(perWorker-5))
	assert.Len(t, incomplete, workers*5)
	assert.Equal(t, workers*perWorker, state.Snapshot().Completed)
}

func TestRunState_SnapshotUsesElapsedSinceStart(t *testing.T) {
	start := time.Date(2025, 4, 14, 8, 0, 0, 0, time.UTC)
	now := start
	state := NewRunState("run-2", 40, 4)
	state.now = func() time.Time { return now }
	state.MarkStarted()

	for i := 0; i < 9; i++ {
		state.Complete(&models.JobResult{ID: "a"}, nil)
	}
	now = start.Add(20 * time.Second)
	snapshot := state.Complete(&models.JobResult{ID: "b"}, nil)

	assert.Equal(t, 10, snapshot.Completed)
	assert.Equal(t, 20*time.Second, snapshot.Elapsed)
	assert.InDelta(t, 0.5, snapshot.JobsPerSec, 1e-9)
	assert.InDelta(t, 8.0, snapshot.SecPerJob, 1e-9)
	assert.InDelta(t, 240.0, snapshot.ETASeconds, 1e-9)
	assert.InDelta(t, 25.0, snapshot.Percent(), 1e-9)
	assert.Equal(t, start, state.StartedAt())
}
