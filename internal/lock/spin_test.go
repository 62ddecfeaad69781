package lock

import (
	"sync"
	"testing"
	"time"
)

func TestSpin(t *testing.T) {
	var (
		sl         Spin
		wg         sync.WaitGroup
		numWorkers = 10
	)

	sl.Acquire()

	if sl.TryAcquire() {
		t.Error("expected TryAcquire to fail while lock is held")
	}

	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			sl.Acquire()
			sl.Release()
			wg.Done()
		}()
	}

	<-time.After(50 * time.Millisecond)
	sl.Release()
	wg.Wait()
}
