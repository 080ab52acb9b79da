package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	sinkEventsDesc = prometheus.NewDesc(
		"telemetry_sink_events_total",
		"Events seen by an async sink, by outcome",
		[]string{"sink", "outcome"}, nil,
	)
	sinkPendingDesc = prometheus.NewDesc(
		"telemetry_sink_pending_events",
		"Events queued in an async sink",
		[]string{"sink"}, nil,
	)
)

// SinkCollector exports the counters of a set of async sinks.
type SinkCollector struct {
	sinks []*AsyncSink
}

func NewSinkCollector(sinks ...*AsyncSink) *SinkCollector {
	return &SinkCollector{sinks: sinks}
}

func (c *SinkCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sinkEventsDesc
	ch <- sinkPendingDesc
}

func (c *SinkCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.sinks {
		st := s.Stats()
		for outcome, n := range map[string]uint64{
			"recorded": st.Recorded,
			"written":  st.Written,
			"dropped":  st.Dropped,
			"failed":   st.Failed,
		} {
			ch <- prometheus.MustNewConstMetric(sinkEventsDesc, prometheus.CounterValue, float64(n), st.Name, outcome)
		}
		ch <- prometheus.MustNewConstMetric(sinkPendingDesc, prometheus.GaugeValue, float64(st.Pending), st.Name)
	}
}
