// Package backoff computes delays between submission retries.
//
// A submission to a full worklist fails with an out-of-memory condition and
// leaves the task with the caller. Callers that would rather wait than drop
// the work retry on a schedule produced by one of the strategies here.
package backoff

import (
	"math/rand"
	"sync"
	"time"
)

// maxShift keeps 1<<attempt from overflowing an int64 duration.
const maxShift = 62

// Type selects the delay algorithm.
type Type int

const (
	// Exponential doubles the delay on every attempt (default).
	Exponential Type = iota
	// Jittered is exponential with a random ±jitter factor applied.
	Jittered
	// Decorrelated picks uniformly between the initial delay and three times
	// the previous delay.
	Decorrelated
)

// String returns the flag spelling of t.
func (t Type) String() string {
	switch t {
	case Jittered:
		return "jittered"
	case Decorrelated:
		return "decorrelated"
	default:
		return "exponential"
	}
}

// ParseType maps a flag spelling back to a Type. Unknown names map to
// Exponential.
func ParseType(s string) Type {
	switch s {
	case "jittered":
		return Jittered
	case "decorrelated":
		return Decorrelated
	default:
		return Exponential
	}
}

// Strategy computes retry delays.
type Strategy interface {
	// NextDelay returns the delay before retry number attempt (0-indexed).
	NextDelay(attempt int) time.Duration

	// Reset clears per-sequence state before a new retry sequence.
	Reset()
}

// New builds the strategy selected by typ.
func New(typ Type, initial, maxDelay time.Duration, jitter float64) Strategy {
	if maxDelay < initial {
		maxDelay = initial
	}

	switch typ {
	case Jittered:
		return &jittered{
			initial: initial,
			max:     maxDelay,
			factor:  clamp(jitter, 0, 1),
			rng:     rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter does not need crypto rand
		}
	case Decorrelated:
		return &decorrelated{
			initial: initial,
			max:     maxDelay,
			prev:    initial,
			rng:     rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter does not need crypto rand
		}
	default:
		return exponential{initial: initial, max: maxDelay}
	}
}

type exponential struct {
	initial, max time.Duration
}

func (e exponential) NextDelay(attempt int) time.Duration {
	return exponentialDelay(attempt, e.initial, e.max)
}

func (exponential) Reset() {}

// jittered spreads simultaneous retries: delay * (1 ± factor).
type jittered struct {
	initial, max time.Duration
	factor       float64

	mu  sync.Mutex
	rng *rand.Rand
}

func (j *jittered) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}
	base := exponentialDelay(attempt, j.initial, j.max)

	j.mu.Lock()
	mult := 1.0 + (j.rng.Float64()*2-1)*j.factor
	j.mu.Unlock()

	return clamp(time.Duration(float64(base)*mult), 0, j.max)
}

func (*jittered) Reset() {}

// decorrelated implements sleep = min(max, random(initial, prev*3)).
type decorrelated struct {
	initial, max time.Duration

	mu   sync.Mutex
	prev time.Duration
	rng  *rand.Rand
}

func (d *decorrelated) NextDelay(attempt int) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	if attempt <= 0 {
		d.prev = d.initial
		return d.initial
	}

	upper := min(d.prev*3, d.max)
	span := upper - d.initial
	if span <= 0 {
		d.prev = d.initial
		return d.initial
	}

	d.prev = d.initial + time.Duration(d.rng.Int63n(int64(span)))
	return d.prev
}

func (d *decorrelated) Reset() {
	d.mu.Lock()
	d.prev = d.initial
	d.mu.Unlock()
}

func exponentialDelay(attempt int, initial, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		return 0
	}
	if attempt >= maxShift {
		return maxDelay
	}

	delay := time.Duration(int64(1)<<uint(attempt)) * initial
	if delay > maxDelay || delay < 0 {
		return maxDelay
	}
	return delay
}

func clamp[T ~int64 | ~float64](v, lo, hi T) T {
	return max(lo, min(v, hi))
}
