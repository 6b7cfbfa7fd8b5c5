// Async execution bridge.
//
// Each async session owns one worker goroutine and one delivery goroutine,
// joined by unbounded FIFO queues. Codec work runs on the worker; callbacks
// run on the delivery goroutine. The worker hands results over without ever
// blocking on callback consumption, so a slow or reentrant callback cannot
// deadlock the codec. A flush marker submitted through both queues is
// delivered strictly after every output that preceded it.
package webcodecs

import "sync"

// fifo is an unbounded FIFO of thunks.
type fifo struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []func()
	closed bool
}

func newFifo() *fifo {
	q := &fifo{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends fn. Returns false when the queue is closed.
func (q *fifo) push(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, fn)
	q.cond.Signal()
	return true
}

// pop blocks until an item is available or the queue is closed and
// drained.
func (q *fifo) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	fn := q.items[0]
	q.items = q.items[1:]
	return fn, true
}

// close stops accepting new items. Queued items still drain.
func (q *fifo) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// bridge runs jobs on a worker goroutine and callbacks on a delivery
// goroutine.
type bridge struct {
	work      *fifo
	delivery  *fifo
	workWG    sync.WaitGroup
	deliverWG sync.WaitGroup
}

func newBridge() *bridge {
	b := &bridge{
		work:     newFifo(),
		delivery: newFifo(),
	}
	b.workWG.Add(1)
	go func() {
		defer b.workWG.Done()
		for {
			job, ok := b.work.pop()
			if !ok {
				return
			}
			job()
		}
	}()
	b.deliverWG.Add(1)
	go func() {
		defer b.deliverWG.Done()
		for {
			fn, ok := b.delivery.pop()
			if !ok {
				return
			}
			fn()
		}
	}()
	return b
}

// submit queues a job for the worker. Returns false after close.
func (b *bridge) submit(job func()) bool {
	return b.work.push(job)
}

// emit queues a callback for the delivery goroutine. Called from worker
// jobs; never blocks.
func (b *bridge) emit(fn func()) bool {
	return b.delivery.push(fn)
}

// close drains both queues and joins both goroutines. Jobs already queued
// still run and their outputs still deliver.
func (b *bridge) close() {
	b.work.close()
	b.workWG.Wait()
	b.delivery.close()
	b.deliverWG.Wait()
}
