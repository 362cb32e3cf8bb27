package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestLocalLocker_ExclusiveUntilReleased(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "task:1")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	if _, err := l.Acquire(ctx, "task:1"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	if r, err := l.Acquire(ctx, "task:2"); err != nil {
		t.Fatalf("other key should be free: %v", err)
	} else {
		r()
	}

	release()
	release() // double release is harmless

	again, err := l.Acquire(ctx, "task:1")
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	again()
}

func TestLocalLocker_ConcurrentAcquireHasSingleWinner(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	const racers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	wg.Add(racers)
	start := make(chan struct{})

	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			<-start
			if _, err := l.Acquire(ctx, "task:race"); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}

	close(start)
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly 1 winner, got %d", winners)
	}
}

func TestLocalLocker_CancelledContext(t *testing.T) {
	l := NewLocalLocker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := l.Acquire(ctx, "task:1"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
