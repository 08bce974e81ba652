package cronjob

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLaneBoundsConcurrency(t *testing.T) {
	lane := NewLane(2)
	var inFlight int32
	var maxSeen int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lane.Submit(context.Background(), func() {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					cur := atomic.LoadInt32(&maxSeen)
					if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
			})
		}()
	}
	wg.Wait()

	if maxSeen > 2 {
		t.Fatalf("lane allowed %d concurrent callbacks, want <= 2", maxSeen)
	}
}

func TestLaneSubmitReturnsCtxErrWhenCanceledBeforeSlotFrees(t *testing.T) {
	lane := NewLane(1)
	release := make(chan struct{})
	go func() {
		_ = lane.Submit(context.Background(), func() {
			<-release
		})
	}()
	time.Sleep(20 * time.Millisecond) // ensure the first Submit holds the only slot

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := lane.Submit(ctx, func() { t.Fatal("fn must not run when ctx is already canceled and lane is full") })
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(release)
}

func TestRunControlCancelInvokesRegisteredHook(t *testing.T) {
	rc := NewRunControl()
	called := false
	rc.Register("cron-1", func() { called = true })

	if !rc.Cancel("cron-1") {
		t.Fatal("expected Cancel to find the registered hook")
	}
	if !called {
		t.Fatal("expected the cancel hook to run")
	}
}

func TestRunControlCancelUnknownJobReturnsFalse(t *testing.T) {
	rc := NewRunControl()
	if rc.Cancel("nope") {
		t.Fatal("expected Cancel to return false for an unregistered job")
	}
}

func TestRunControlUnregisterRemovesHook(t *testing.T) {
	rc := NewRunControl()
	rc.Register("cron-1", func() {})
	rc.Unregister("cron-1")
	if rc.Cancel("cron-1") {
		t.Fatal("expected Cancel to return false after Unregister")
	}
}
