package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrEthical07/lockr"
	"github.com/MrEthical07/lockr/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() lockr.MetricsSnapshot
	AuditDropped() uint64
}

// Collector is a prometheus.Collector backed by controller snapshots.
type Collector struct {
	source metricsSource

	counters     map[lockr.MetricID]*prometheus.Desc
	histograms   map[lockr.MetricID]*prometheus.Desc
	auditDropped *prometheus.Desc
}

// NewCollector reads from c on every scrape.
func NewCollector(c *lockr.Controller) *Collector {
	if c == nil {
		return NewCollectorFromSource(nil)
	}
	return NewCollectorFromSource(c)
}

func NewCollectorFromSource(source metricsSource) *Collector {
	col := &Collector{
		source:     source,
		counters:   make(map[lockr.MetricID]*prometheus.Desc, len(internaldefs.CounterDefs)),
		histograms: make(map[lockr.MetricID]*prometheus.Desc, len(internaldefs.HistogramDefs)),
		auditDropped: prometheus.NewDesc(
			"lockr_audit_dropped_total",
			"Dropped audit events due to dispatcher backpressure.",
			nil, nil,
		),
	}
	for _, def := range internaldefs.CounterDefs {
		col.counters[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	for _, def := range internaldefs.HistogramDefs {
		col.histograms[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	return col
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, def := range internaldefs.CounterDefs {
		ch <- c.counters[def.ID]
	}
	for _, def := range internaldefs.HistogramDefs {
		ch <- c.histograms[def.ID]
	}
	ch <- c.auditDropped
}

// Collect emits nothing when the source is nil or has metrics disabled.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()
	dropped := c.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return
	}

	for _, def := range internaldefs.CounterDefs {
		ch <- prometheus.MustNewConstMetric(c.counters[def.ID], prometheus.CounterValue, float64(snapshot.Counters[def.ID]))
	}

	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramBoundSeconds))
		for i, bound := range internaldefs.HistogramBoundSeconds {
			buckets[bound] = cumulative[i]
		}
		// Samples are bucketed only, so the sum is not tracked.
		ch <- prometheus.MustNewConstHistogram(c.histograms[def.ID], cumulative[len(cumulative)-1], 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(dropped))
}

// Handler serves the collector from a private registry.
func Handler(c prometheus.Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
