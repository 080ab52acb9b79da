package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/mindgames/go/internal/gateway"
	"github.com/mcdev12/mindgames/go/internal/session"
	"github.com/mcdev12/mindgames/go/internal/telemetry"
)

func setupServer(cfg *Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	registerServices(mux, services)
	setupHealthCheck(mux, services)
	setupMetrics(mux, services)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	sessionPath, sessionHandler := session.NewService(services.Manager).Handler()
	mux.Handle(sessionPath, sessionHandler)

	gateway.NewWebSocketHandler(services.Gateway).RegisterRoutes(mux)
}

type healthResponse struct {
	Status string                 `json:"status"`
	Plays  int                    `json:"plays"`
	Sinks  []telemetry.AsyncStats `json:"sinks"`
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Plays: len(services.Manager.List())}
		for _, sink := range services.Sinks {
			resp.Sinks = append(resp.Sinks, sink.Stats())
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error().Err(err).Msg("Failed to write health check response")
		}
	})
}
