// Package breaker provides a circuit breaker for failing dependencies.
//
// A breaker counts consecutive failures while closed. Once the threshold is
// reached it opens and rejects calls immediately until the reset timeout
// elapses, then admits a bounded number of half-open probes: any probe
// failure reopens the breaker, any probe success closes it again.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker rejects a call without invoking the
// wrapped operation.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the breaker state.
type State int

const (
	// Closed allows all calls through while counting consecutive failures.
	Closed State = iota
	// Open rejects all calls until the reset timeout elapses.
	Open
	// HalfOpen admits a bounded number of concurrent probe calls.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker is a circuit breaker. The zero value is not usable; construct with New.
type Breaker struct {
	threshold      int
	resetTimeout   time.Duration
	halfOpenProbes int

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probes      int // in-flight probes while half-open

	// onTransition, when set, observes state changes.
	onTransition func(from, to State)

	now func() time.Time // injected in tests
}

// New creates a circuit breaker that opens after threshold consecutive
// failures, stays open for resetTimeout, then admits up to halfOpenProbes
// concurrent probe calls.
func New(threshold int, resetTimeout time.Duration, halfOpenProbes int) *Breaker {
	if halfOpenProbes < 1 {
		halfOpenProbes = 1
	}
	return &Breaker{
		threshold:      threshold,
		resetTimeout:   resetTimeout,
		halfOpenProbes: halfOpenProbes,
		now:            time.Now,
	}
}

// OnTransition registers an observer for state changes. Must be called before
// the breaker is shared between goroutines.
func (b *Breaker) OnTransition(fn func(from, to State)) {
	b.onTransition = fn
}

// State returns the current state, accounting for reset-timeout expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.lastFailure) >= b.resetTimeout {
		return HalfOpen
	}
	return b.state
}

// Do invokes the operation if the breaker admits it. While open, Do returns
// ErrOpen without invoking the operation.
func (b *Breaker) Do(operation func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := operation()
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil
	case Open:
		if b.now().Sub(b.lastFailure) < b.resetTimeout {
			return ErrOpen
		}
		b.transition(HalfOpen)
		b.probes = 1
		return nil
	case HalfOpen:
		if b.probes >= b.halfOpenProbes {
			return ErrOpen
		}
		b.probes++
		return nil
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		if err != nil {
			b.failures++
			b.lastFailure = b.now()
			if b.failures >= b.threshold {
				b.transition(Open)
			}
		} else {
			// Failure count resets only on success while closed.
			b.failures = 0
		}
	case HalfOpen:
		b.probes--
		if err != nil {
			b.lastFailure = b.now()
			b.transition(Open)
		} else {
			b.failures = 0
			b.probes = 0
			b.transition(Closed)
		}
	case Open:
		// A call admitted before the breaker opened may report late; keep the
		// most recent failure time so the reset window is not shortened.
		if err != nil {
			b.lastFailure = b.now()
		}
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onTransition != nil {
		b.onTransition(from, to)
	}
}
