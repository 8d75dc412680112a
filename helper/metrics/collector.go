package metrics

import (
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/utkarsh5026/helperpool/helper"
)

// StatsProvider returns coordinator snapshots. *helper.Coordinator
// implements it.
type StatsProvider interface {
	Stats() helper.Stats
}

// Collector reads a coordinator snapshot at scrape time and reports queue
// depths and thread usage as gauges.
type Collector struct {
	src StatsProvider

	queued      *prom.Desc
	running     *prom.Desc
	finished    *prom.Desc
	completed   *prom.Desc
	maxThreads  *prom.Desc
	threads     *prom.Desc
	active      *prom.Desc
	pending     *prom.Desc
	compression *prom.Desc
	lazyLinks   *prom.Desc
	backlogged  *prom.Desc
}

var _ prom.Collector = (*Collector)(nil)

// NewCollector returns a collector over src. The coordinator label
// distinguishes several coordinators registered with one registry.
func NewCollector(namespace, coordinator string, src StatsProvider) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	constLabels := prom.Labels{"coordinator": coordinator}
	desc := func(name, help string, labels ...string) *prom.Desc {
		return prom.NewDesc(prom.BuildFQName(namespace, "", name), help, labels, constLabels)
	}

	return &Collector{
		src:         src,
		queued:      desc("worklist_depth", "Tasks waiting in each worklist.", "kind"),
		running:     desc("tasks_running", "Tasks currently running per kind.", "kind"),
		finished:    desc("finished_depth", "Finished tasks waiting for their producer.", "kind"),
		completed:   desc("tasks_completed", "Tasks that ran to completion per kind.", "kind"),
		maxThreads:  desc("kind_max_threads", "Concurrency limit per kind.", "kind"),
		threads:     desc("threads", "Worker count."),
		active:      desc("threads_active", "Workers running a task."),
		pending:     desc("dispatches_pending", "Dispatches not yet consumed by a worker."),
		compression: desc("compressions_pending", "Compressions waiting for a major collection."),
		lazyLinks:   desc("lazy_links", "Finished JIT compilations awaiting lazy linking."),
		backlogged:  desc("wasm_tier2_backlogged", "1 while tier-2 generators are backlogged."),
	}
}

// Describe sends every descriptor.
func (c *Collector) Describe(ch chan<- *prom.Desc) {
	for _, d := range []*prom.Desc{
		c.queued, c.running, c.finished, c.completed, c.maxThreads,
		c.threads, c.active, c.pending, c.compression, c.lazyLinks, c.backlogged,
	} {
		ch <- d
	}
}

// Collect takes one snapshot and sends it as constant metrics.
func (c *Collector) Collect(ch chan<- prom.Metric) {
	s := c.src.Stats()

	for _, k := range s.Kinds {
		kind := k.Kind.String()
		ch <- prom.MustNewConstMetric(c.queued, prom.GaugeValue, float64(k.Queued), kind)
		ch <- prom.MustNewConstMetric(c.running, prom.GaugeValue, float64(k.Running), kind)
		ch <- prom.MustNewConstMetric(c.finished, prom.GaugeValue, float64(k.Finished), kind)
		ch <- prom.MustNewConstMetric(c.completed, prom.CounterValue, float64(k.Completed), kind)
		ch <- prom.MustNewConstMetric(c.maxThreads, prom.GaugeValue, float64(k.MaxThreads), kind)
	}

	backlogged := 0.0
	if s.Tier2Backlogged {
		backlogged = 1
	}
	ch <- prom.MustNewConstMetric(c.threads, prom.GaugeValue, float64(s.ThreadCount))
	ch <- prom.MustNewConstMetric(c.active, prom.GaugeValue, float64(s.ActiveThreads))
	ch <- prom.MustNewConstMetric(c.pending, prom.GaugeValue, float64(s.TasksPending))
	ch <- prom.MustNewConstMetric(c.compression, prom.GaugeValue, float64(s.PendingCompressions))
	ch <- prom.MustNewConstMetric(c.lazyLinks, prom.GaugeValue, float64(s.LazyLinks))
	ch <- prom.MustNewConstMetric(c.backlogged, prom.GaugeValue, backlogged)
}
