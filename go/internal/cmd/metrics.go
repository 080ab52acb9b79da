package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcdev12/mindgames/go/internal/telemetry"
)

func setupMetrics(mux *http.ServeMux, services *Services) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		telemetry.NewSinkCollector(services.Sinks...),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "mindgames",
			Name:      "active_plays",
			Help:      "Plays held by the session manager",
		}, func() float64 { return float64(len(services.Manager.List())) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "mindgames",
			Name:      "websocket_connections",
			Help:      "Open websocket connections",
		}, func() float64 {
			n, _ := services.Gateway.GetConnectionStats()["total_connections"].(int)
			return float64(n)
		}),
	)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}
