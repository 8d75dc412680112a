package helper

import (
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/utkarsh5026/helperpool/internal/backoff"
)

// Option is a functional option for configuring a Coordinator.
type Option func(*config)

type config struct {
	cpuCount              int
	cpuCeiling            int
	tier2BacklogThreshold int
	backgroundCoreDivisor int
	worklistCapacity      int
	affinity              bool
	extraThreads          bool

	dispatchRate  rate.Limit
	dispatchBurst int

	log     zerolog.Logger
	metrics Metrics

	submitAttempts int
	backoffType    backoff.Type
	backoffInitial time.Duration
	backoffMax     time.Duration
	backoffJitter  float64
}

func defaultConfig() config {
	return config{
		cpuCeiling:            DefaultCPUCeiling,
		tier2BacklogThreshold: DefaultTier2BacklogThreshold,
		backgroundCoreDivisor: DefaultBackgroundCoreDivisor,
		extraThreads:          true,
		log:                   zerolog.Nop(),
		metrics:               NilMetrics{},
		submitAttempts:        5,
		backoffType:           backoff.Exponential,
		backoffInitial:        time.Millisecond,
		backoffMax:            100 * time.Millisecond,
		backoffJitter:         0.1,
	}
}

// WithCPUCount overrides the probed CPU count. The value is used as given,
// without the ceiling clamp. Zero keeps the probe.
func WithCPUCount(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.cpuCount = n
		}
	}
}

// WithCPUCeiling sets the clamp applied to the probed CPU count.
// If not specified, defaults to DefaultCPUCeiling. Zero disables the clamp.
func WithCPUCeiling(n int) Option {
	return func(cfg *config) {
		if n >= 0 {
			cfg.cpuCeiling = n
		}
	}
}

// WithTier2BacklogThreshold sets the tier-2 generator queue depth above
// which tier-1 wasm compilation pauses in favour of tier-2.
func WithTier2BacklogThreshold(depth int) Option {
	return func(cfg *config) {
		if depth >= 0 {
			cfg.tier2BacklogThreshold = depth
		}
	}
}

// WithBackgroundCoreDivisor sets how logical CPUs map to the physical cores
// available for background tier-2 compilation: ceil(cpus / divisor).
func WithBackgroundCoreDivisor(divisor int) Option {
	return func(cfg *config) {
		if divisor > 0 {
			cfg.backgroundCoreDivisor = divisor
		}
	}
}

// WithWorklistCapacity bounds every worklist and the compression pending
// list. Submissions to a full worklist fail with ErrOutOfMemory. Zero means
// unbounded. Finished lists and the GC worklist are never bounded.
func WithWorklistCapacity(n int) Option {
	return func(cfg *config) {
		if n >= 0 {
			cfg.worklistCapacity = n
		}
	}
}

// WithWorkerAffinity pins each internal worker to its own CPU core.
// It has no effect with an external dispatch callback.
func WithWorkerAffinity(enabled bool) Option {
	return func(cfg *config) { cfg.affinity = enabled }
}

// WithInvariantChecks verifies container membership and running counts
// every time the coordinator lock is taken or released. Checking is switched
// on process-wide through syncutil and cannot be switched off again, so this
// is intended for tests.
func WithInvariantChecks(enabled bool) Option {
	return func(*config) {
		if enabled {
			syncutil.EnableInvariantChecking()
		}
	}
}

// WithoutExtraThreads builds a coordinator that never starts workers.
// Promise helper tasks run inline on the submitting goroutine, delazify
// submissions are dropped and EnsureInitialized returns ErrNoExtraThreads.
func WithoutExtraThreads() Option {
	return func(cfg *config) { cfg.extraThreads = false }
}

// WithDispatchRateLimit throttles calls to an external dispatch callback.
// Throttled dispatches are delayed, never dropped.
//
// Example:
//
//	WithDispatchRateLimit(1000, 50) // at most 1000 wakeups/sec, bursts of 50
func WithDispatchRateLimit(perSecond float64, burst int) Option {
	return func(cfg *config) {
		if perSecond > 0 && burst > 0 {
			cfg.dispatchRate = rate.Limit(perSecond)
			cfg.dispatchBurst = burst
		}
	}
}

// WithLogger sets the logger. Defaults to a disabled logger.
func WithLogger(l zerolog.Logger) Option {
	return func(cfg *config) { cfg.log = l }
}

// WithMetrics sets the metrics sink. Defaults to NilMetrics.
func WithMetrics(m Metrics) Option {
	return func(cfg *config) {
		if m != nil {
			cfg.metrics = m
		}
	}
}

// WithSubmitRetry configures SubmitWithRetry: the number of attempts and
// the backoff between them.
//
// Example:
//
//	WithSubmitRetry(10, backoff.Decorrelated, time.Millisecond, 50*time.Millisecond, 0)
func WithSubmitRetry(attempts int, typ backoff.Type, initial, maxDelay time.Duration, jitter float64) Option {
	return func(cfg *config) {
		if attempts > 0 {
			cfg.submitAttempts = attempts
		}
		cfg.backoffType = typ
		if initial > 0 {
			cfg.backoffInitial = initial
		}
		if maxDelay > 0 {
			cfg.backoffMax = maxDelay
		}
		cfg.backoffJitter = jitter
	}
}
