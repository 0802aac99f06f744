package session

import (
	"sync"
	"testing"
)

func TestLockTableSerializesSameConversation(t *testing.T) {
	table := newLockTable()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := table.acquire("conv-1")
			defer release()
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("expected 50 serialized increments, got %d", counter)
	}
}

func TestLockTableDropsIdleEntries(t *testing.T) {
	table := newLockTable()

	release := table.acquire("conv-1")
	release()

	table.mu.Lock()
	defer table.mu.Unlock()
	if len(table.locks) != 0 {
		t.Errorf("expected empty table after release, got %d entries", len(table.locks))
	}
}

func TestLockTableIndependentConversations(t *testing.T) {
	table := newLockTable()

	releaseA := table.acquire("conv-a")
	defer releaseA()

	// Acquiring an unrelated conversation must not block.
	done := make(chan struct{})
	go func() {
		releaseB := table.acquire("conv-b")
		releaseB()
		close(done)
	}()
	<-done
}
