package webcodecs

import (
	"sync"
	"testing"
	"time"
)

func TestBridgeDeliversInOrder(t *testing.T) {
	b := newBridge()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	const n = 100
	for i := 0; i < n; i++ {
		i := i
		b.submit(func() {
			b.emit(func() {
				mu.Lock()
				got = append(got, i)
				if len(got) == n {
					close(done)
				}
				mu.Unlock()
			})
		})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("outputs not delivered")
	}
	b.close()

	for i := 0; i < n; i++ {
		if got[i] != i {
			t.Fatalf("delivery out of order at %d: got %d", i, got[i])
		}
	}
}

func TestBridgeWorkerDoesNotBlockOnDelivery(t *testing.T) {
	b := newBridge()

	release := make(chan struct{})
	workerDone := make(chan struct{})

	// First delivered callback parks the delivery goroutine.
	b.submit(func() {
		b.emit(func() { <-release })
	})
	// The worker must still chew through all of these while delivery is
	// parked.
	const n = 1000
	for i := 0; i < n-1; i++ {
		b.submit(func() {
			b.emit(func() {})
		})
	}
	b.submit(func() { close(workerDone) })

	select {
	case <-workerDone:
	case <-time.After(5 * time.Second):
		t.Fatal("worker blocked on delivery consumption")
	}
	close(release)
	b.close()
}

func TestBridgeFlushMarkerAfterOutputs(t *testing.T) {
	b := newBridge()

	var mu sync.Mutex
	var outputs int
	seenAtMarker := -1
	marker := make(chan struct{})

	const n = 50
	for i := 0; i < n; i++ {
		b.submit(func() {
			b.emit(func() {
				mu.Lock()
				outputs++
				mu.Unlock()
			})
		})
	}
	// The flush marker rides the same two queues, so every prior output
	// must be delivered first.
	b.submit(func() {
		b.emit(func() {
			mu.Lock()
			seenAtMarker = outputs
			mu.Unlock()
			close(marker)
		})
	})

	select {
	case <-marker:
	case <-time.After(5 * time.Second):
		t.Fatal("marker not delivered")
	}
	b.close()

	if seenAtMarker != n {
		t.Errorf("marker delivered after %d of %d outputs", seenAtMarker, n)
	}
}

func TestBridgeCloseDrainsQueuedWork(t *testing.T) {
	b := newBridge()

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 20; i++ {
		b.submit(func() {
			b.emit(func() {
				mu.Lock()
				ran++
				mu.Unlock()
			})
		})
	}
	b.close()

	mu.Lock()
	defer mu.Unlock()
	if ran != 20 {
		t.Errorf("close dropped queued work: %d of 20 delivered", ran)
	}
}

func TestBridgeRejectsAfterClose(t *testing.T) {
	b := newBridge()
	b.close()
	if b.submit(func() {}) {
		t.Error("submit accepted after close")
	}
	if b.emit(func() {}) {
		t.Error("emit accepted after close")
	}
}
