// Package metrics exposes the engine's Prometheus counters and the
// standalone metrics HTTP server.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "r3e_events_ingested_total",
			Help: "Events accepted into the registry, per source",
		},
		[]string{"source"},
	)

	EventsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "r3e_events_deduplicated_total",
			Help: "Events dropped as duplicates at registration, per source",
		},
		[]string{"source"},
	)

	TriggerMatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "r3e_trigger_matches_total",
			Help: "Trigger matches produced by the matcher",
		},
	)

	TasksDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "r3e_tasks_delivered_total",
			Help: "Task assignments handed to workers",
		},
	)

	TaskOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "r3e_task_outcomes_total",
			Help: "Acknowledged task outcomes",
		},
		[]string{"outcome"},
	)

	LeasesExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "r3e_leases_expired_total",
			Help: "Task leases reclaimed after the worker went silent",
		},
	)

	PoolDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "r3e_task_pool_depth",
			Help: "Unclaimed tasks waiting for a worker",
		},
	)

	RegisteredFunctions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "r3e_registered_functions",
			Help: "Functions currently registered",
		},
	)
)

// Server serves /metrics on its own port, separate from the API.
type Server struct {
	srv    *http.Server
	logger logging.Logger
}

func NewServer(port string, logger logging.Logger) *Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	})

	return &Server{
		srv: &http.Server{
			Addr:         ":" + port,
			Handler:      corsHandler.Handler(router),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (s *Server) Start() {
	go func() {
		s.logger.Infof("Starting metrics server on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Metrics server stopped: %v", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
