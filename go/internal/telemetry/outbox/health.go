package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	LastEventTime     time.Time `json:"last_event_time"`
	EventsProcessed   uint64    `json:"events_processed"`
	EventsFailed      uint64    `json:"events_failed"`
	PendingEvents     int       `json:"pending_events"`
	DatabaseConnected bool      `json:"database_connected"`
	BusConnected      bool      `json:"bus_connected"`
	ListenerActive    bool      `json:"listener_active"`
	Errors            []string  `json:"errors"`
}

// Pinger is a database handle that can be pinged.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe reports a boolean condition, such as a live bus connection.
type Probe func() bool

// HealthChecker reports on the relay and everything it depends on. Nil
// probes are skipped.
type HealthChecker struct {
	Relay          *Relay
	Store          Store
	DB             Pinger
	BusConnected   Probe
	ListenerActive Probe
	// Threshold is how long pending events may sit unrelayed before the
	// relay counts as stuck.
	Threshold time.Duration
	// PendingWarn is the backlog size that adds a warning.
	PendingWarn int
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	status.EventsProcessed, status.EventsFailed, status.LastEventTime = h.Relay.Stats()

	status.DatabaseConnected = true
	if h.DB != nil {
		if err := h.DB.Ping(ctx); err != nil {
			status.DatabaseConnected = false
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
		}
	}

	if h.BusConnected != nil {
		status.BusConnected = h.BusConnected()
		if !status.BusConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "event bus disconnected")
		}
	}

	if h.ListenerActive != nil {
		status.ListenerActive = h.ListenerActive()
		if !status.ListenerActive {
			status.Healthy = false
			status.Errors = append(status.Errors, "listener not active")
		}
	}

	if status.DatabaseConnected {
		pending, err := h.Store.CountUnsent(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		} else {
			status.PendingEvents = pending
			if h.PendingWarn > 0 && pending > h.PendingWarn {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	if status.PendingEvents > 0 && !status.LastEventTime.IsZero() && h.Threshold > 0 {
		if since := time.Since(status.LastEventTime); since > h.Threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events processed for %s", since))
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// MetricsHandler serves the relay's health and counters to Prometheus,
// alongside the Go runtime collectors.
func (h *HealthChecker) MetricsHandler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		newHealthCollector(h),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// healthCollector runs one health check per scrape.
type healthCollector struct {
	h         *HealthChecker
	healthy   *prometheus.Desc
	processed *prometheus.Desc
	failed    *prometheus.Desc
	pending   *prometheus.Desc
	lastEvent *prometheus.Desc
}

func newHealthCollector(h *HealthChecker) *healthCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("outbox", "", name), help, nil, nil)
	}
	return &healthCollector{
		h:         h,
		healthy:   desc("healthy", "Whether the outbox relay is healthy"),
		processed: desc("events_processed_total", "Events relayed to the bus"),
		failed:    desc("events_failed_total", "Events that exhausted their publish retries"),
		pending:   desc("pending_events", "Unsent events in the outbox"),
		lastEvent: desc("last_event_timestamp_seconds", "Unix time of the last relayed event"),
	}
}

func (c *healthCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.healthy
	ch <- c.processed
	ch <- c.failed
	ch <- c.pending
	ch <- c.lastEvent
}

func (c *healthCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := c.h.Check(ctx)

	healthy := 0.0
	if s.Healthy {
		healthy = 1
	}
	var last float64
	if !s.LastEventTime.IsZero() {
		last = float64(s.LastEventTime.Unix())
	}
	ch <- prometheus.MustNewConstMetric(c.healthy, prometheus.GaugeValue, healthy)
	ch <- prometheus.MustNewConstMetric(c.processed, prometheus.CounterValue, float64(s.EventsProcessed))
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(s.EventsFailed))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(s.PendingEvents))
	ch <- prometheus.MustNewConstMetric(c.lastEvent, prometheus.GaugeValue, last)
}
