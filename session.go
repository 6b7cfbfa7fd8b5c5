// Session lifecycle shared by the four codec session types.
package webcodecs

import (
	"context"
	"sync"
	"sync/atomic"
)

// CodecState is the lifecycle state of a codec session.
type CodecState int

const (
	// StateUnconfigured sessions accept only Configure and Close.
	StateUnconfigured CodecState = iota
	// StateConfigured sessions accept work.
	StateConfigured
	// StateClosed sessions reject everything. Terminal.
	StateClosed
)

func (s CodecState) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateClosed:
		return "closed"
	default:
		return "unconfigured"
	}
}

// session carries the state machine, queue accounting and async plumbing
// common to encoders and decoders.
type session struct {
	mu    sync.Mutex
	state CodecState

	// epoch increments on every reset and close; units carrying a stale
	// epoch are discarded instead of delivered.
	epoch   atomic.Uint64
	pending atomic.Int64

	async  bool
	bridge *bridge

	onError   func(error)
	onDequeue func()
}

func (s *session) start(async bool, onError func(error), onDequeue func()) {
	s.async = async
	s.onError = onError
	s.onDequeue = onDequeue
	if async {
		s.bridge = newBridge()
	}
}

// State returns the current lifecycle state.
func (s *session) State() CodecState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// queueSize is the number of submitted units not yet completed.
func (s *session) queueSize() int {
	n := s.pending.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// beginConfigure validates the transition into Configured. Reconfiguring
// a configured session is allowed; the caller tears down the old backend
// first.
func (s *session) beginConfigure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrInvalidState
	}
	return nil
}

func (s *session) setConfigured() {
	s.mu.Lock()
	s.state = StateConfigured
	s.mu.Unlock()
}

// requireConfigured gates per-unit operations.
func (s *session) requireConfigured() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConfigured {
		return ErrInvalidState
	}
	return nil
}

// submit runs fn on the worker in async mode, inline otherwise. fn
// receives the epoch current at submission time.
func (s *session) submit(fn func(epoch uint64)) {
	epoch := s.epoch.Load()
	s.pending.Add(1)
	if s.async {
		s.bridge.submit(func() { fn(epoch) })
		return
	}
	fn(epoch)
}

// live reports whether outputs tagged with epoch may still be delivered.
func (s *session) live(epoch uint64) bool {
	if s.epoch.Load() != epoch {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConfigured
}

// deliver routes a callback through the delivery goroutine in async mode,
// dropping it when the unit's epoch went stale.
func (s *session) deliver(epoch uint64, fn func()) {
	if !s.live(epoch) {
		return
	}
	if s.async {
		s.bridge.emit(func() {
			if s.live(epoch) {
				fn()
			}
		})
		return
	}
	fn()
}

// completeUnit balances a submit and fires the dequeue callback.
func (s *session) completeUnit(epoch uint64) {
	s.pending.Add(-1)
	if s.onDequeue != nil {
		s.deliver(epoch, s.onDequeue)
	}
}

// reportError funnels a per-unit failure to the error callback. The
// session stays configured.
func (s *session) reportError(epoch uint64, err error) {
	if s.onError == nil {
		return
	}
	s.deliver(epoch, func() { s.onError(err) })
}

// flushWait blocks until a marker submitted after all queued work is
// delivered, or ctx is done. The codec-level drain runs in doFlush.
func (s *session) flushWait(ctx context.Context, doFlush func() error) error {
	if !s.async {
		return doFlush()
	}
	epoch := s.epoch.Load()
	done := make(chan error, 1)
	submitted := s.bridge.submit(func() {
		err := doFlush()
		// The marker rides the delivery queue so completion observes
		// FIFO order with prior outputs.
		if !s.bridge.emit(func() { done <- err }) {
			done <- err
		}
	})
	if !submitted {
		// Close raced the flush; the bridge dropped the marker.
		return ErrInvalidState
	}
	select {
	case err := <-done:
		if s.epoch.Load() != epoch {
			// Reset or close raced the flush; the WebCodecs contract
			// surfaces that as an aborted operation.
			return ErrInvalidState
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// invalidate bumps the epoch so in-flight work is discarded, and zeroes
// the queue.
func (s *session) invalidate() {
	s.epoch.Add(1)
	s.pending.Store(0)
}

// resetState returns the session to Unconfigured.
func (s *session) resetState() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrInvalidState
	}
	s.state = StateUnconfigured
	return nil
}

// closeState transitions to Closed and stops the bridge. Idempotent.
func (s *session) closeState() {
	s.mu.Lock()
	alreadyClosed := s.state == StateClosed
	s.state = StateClosed
	s.mu.Unlock()
	if alreadyClosed {
		return
	}
	if s.bridge != nil {
		s.bridge.close()
	}
}
