// Package metrics exports coordinator activity to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/utkarsh5026/helperpool/helper"
)

// DefaultNamespace prefixes every metric name when none is given.
const DefaultNamespace = "helper"

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	Namespace       string
	DurationBuckets []float64
}

// Exporter adapts helper.Metrics to Prometheus collectors.
type Exporter struct {
	submitted  *prom.CounterVec
	rejected   *prom.CounterVec
	cancelled  *prom.CounterVec
	failed     *prom.CounterVec
	dispatched *prom.CounterVec
	queueWait  *prom.HistogramVec
	runTime    *prom.HistogramVec
}

var _ helper.Metrics = (*Exporter)(nil)

// NewExporter creates the exporter's collectors and registers them with
// reg. Collectors already registered by an earlier exporter are reused, so
// several coordinators can share one registry.
func NewExporter(reg prom.Registerer, opts ExporterOptions) (*Exporter, error) {
	ns := opts.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.ExponentialBuckets(0.0001, 4, 10)
	}

	submitted := prom.NewCounterVec(prom.CounterOpts{
		Namespace: ns,
		Name:      "tasks_submitted_total",
		Help:      "Tasks accepted into a worklist.",
	}, []string{"kind"})
	rejected := prom.NewCounterVec(prom.CounterOpts{
		Namespace: ns,
		Name:      "tasks_rejected_total",
		Help:      "Submissions refused because the worklist was full.",
	}, []string{"kind"})
	cancelled := prom.NewCounterVec(prom.CounterOpts{
		Namespace: ns,
		Name:      "tasks_cancelled_total",
		Help:      "Tasks removed before they ran.",
	}, []string{"kind"})
	failed := prom.NewCounterVec(prom.CounterOpts{
		Namespace: ns,
		Name:      "tasks_failed_total",
		Help:      "Task bodies that returned an error or panicked.",
	}, []string{"kind"})
	dispatched := prom.NewCounterVec(prom.CounterOpts{
		Namespace: ns,
		Name:      "dispatches_total",
		Help:      "Wakeups sent to the execution substrate.",
	}, []string{"reason"})
	queueWait := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: ns,
		Name:      "task_queue_seconds",
		Help:      "Time tasks spent in their worklist before starting.",
		Buckets:   buckets,
	}, []string{"kind"})
	runTime := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: ns,
		Name:      "task_run_seconds",
		Help:      "Task body execution time.",
		Buckets:   buckets,
	}, []string{"kind"})

	var err error
	if submitted, err = registerCollector(reg, submitted); err != nil {
		return nil, err
	}
	if rejected, err = registerCollector(reg, rejected); err != nil {
		return nil, err
	}
	if cancelled, err = registerCollector(reg, cancelled); err != nil {
		return nil, err
	}
	if failed, err = registerCollector(reg, failed); err != nil {
		return nil, err
	}
	if dispatched, err = registerCollector(reg, dispatched); err != nil {
		return nil, err
	}
	if queueWait, err = registerCollector(reg, queueWait); err != nil {
		return nil, err
	}
	if runTime, err = registerCollector(reg, runTime); err != nil {
		return nil, err
	}

	return &Exporter{
		submitted:  submitted,
		rejected:   rejected,
		cancelled:  cancelled,
		failed:     failed,
		dispatched: dispatched,
		queueWait:  queueWait,
		runTime:    runTime,
	}, nil
}

// TaskSubmitted counts a task entering a worklist.
func (e *Exporter) TaskSubmitted(kind helper.ThreadKind) {
	e.submitted.WithLabelValues(kind.String()).Inc()
}

// TaskStarted records how long a task waited before a worker picked it.
func (e *Exporter) TaskStarted(kind helper.ThreadKind, queued time.Duration) {
	e.queueWait.WithLabelValues(kind.String()).Observe(queued.Seconds())
}

// TaskFinished records a task's run time and counts it as failed if err is set.
func (e *Exporter) TaskFinished(kind helper.ThreadKind, ran time.Duration, err error) {
	e.runTime.WithLabelValues(kind.String()).Observe(ran.Seconds())
	if err != nil {
		e.failed.WithLabelValues(kind.String()).Inc()
	}
}

// TaskCancelled counts a task removed before it ran.
func (e *Exporter) TaskCancelled(kind helper.ThreadKind) {
	e.cancelled.WithLabelValues(kind.String()).Inc()
}

// SubmitRejected counts a submission refused by a full worklist.
func (e *Exporter) SubmitRejected(kind helper.ThreadKind) {
	e.rejected.WithLabelValues(kind.String()).Inc()
}

// Dispatched counts a wakeup of the execution substrate.
func (e *Exporter) Dispatched(reason helper.DispatchReason) {
	e.dispatched.WithLabelValues(reason.String()).Inc()
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
