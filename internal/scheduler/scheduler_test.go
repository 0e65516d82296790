package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardedSkipsOverlappingRuns(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	job := guarded("test", func() error {
		if runs.Add(1) == 1 {
			close(started)
			<-release
		}
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		job()
	}()

	<-started
	// Overlapping tick while the first run is blocked: skipped
	job()
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	wg.Wait()

	// After the first run finishes the next tick runs again
	job()
	assert.Equal(t, int32(2), runs.Load())
}
