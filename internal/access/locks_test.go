package access

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockSet_SerializesSameKey(t *testing.T) {
	locks := NewLockSet()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("serial-1")
			defer unlock()

			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	if maxInside.Load() != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside.Load())
	}
	if locks.size() != 0 {
		t.Errorf("size() = %d after all unlocks, want 0", locks.size())
	}
}

func TestLockSet_DifferentKeysDoNotBlock(t *testing.T) {
	locks := NewLockSet()

	unlockA := locks.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locking b blocked behind a")
	}

	if locks.size() != 1 {
		t.Errorf("size() = %d, want 1 (only a held)", locks.size())
	}
}
