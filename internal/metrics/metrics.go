package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OwnerTable exposes the size of the loaded owner map.
type OwnerTable interface {
	Len() int
	Mapped() int
}

// Recorder counts routing decisions and times CRM lookups. A nil *Recorder
// is valid and records nothing.
type Recorder struct {
	decisions   *prometheus.CounterVec
	crmDuration *prometheus.HistogramVec
}

// NewRecorder creates a Recorder and registers its metrics with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callrouter_routing_decisions_total",
			Help: "Routing decisions by outcome (agent, no_owner, unmapped_owner, no_number, crm_error)",
		}, []string{"outcome"}),
		crmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "callrouter_crm_request_duration_seconds",
			Help:    "Duration of CRM owner lookups",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		}, []string{"result"}),
	}
	reg.MustRegister(r.decisions, r.crmDuration)
	return r
}

// RecordDecision counts one routing decision.
func (r *Recorder) RecordDecision(outcome string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(outcome).Inc()
}

// ObserveCRM records the duration of one CRM lookup. result is "ok" or
// "error".
func (r *Recorder) ObserveCRM(result string, d time.Duration) {
	if r == nil {
		return
	}
	r.crmDuration.WithLabelValues(result).Observe(d.Seconds())
}

// Collector is a prometheus.Collector that reports static process state at
// scrape time.
type Collector struct {
	owners    OwnerTable
	startTime time.Time

	ownerEntriesDesc *prometheus.Desc
	uptimeDesc       *prometheus.Desc
}

// NewCollector creates a collector. owners may be nil.
func NewCollector(owners OwnerTable, startTime time.Time) *Collector {
	return &Collector{
		owners:    owners,
		startTime: startTime,

		ownerEntriesDesc: prometheus.NewDesc(
			"callrouter_owner_map_entries",
			"Owners in the loaded owner map, split by whether they resolve to an agent",
			[]string{"state"}, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"callrouter_uptime_seconds",
			"Seconds since the callrouter process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ownerEntriesDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.owners != nil {
		mapped := c.owners.Mapped()
		ch <- prometheus.MustNewConstMetric(
			c.ownerEntriesDesc, prometheus.GaugeValue,
			float64(mapped), "mapped",
		)
		ch <- prometheus.MustNewConstMetric(
			c.ownerEntriesDesc, prometheus.GaugeValue,
			float64(c.owners.Len()-mapped), "unmapped",
		)
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
