package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"gridvi/logging"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	// Upper bound on a single HTTP solve or sample.
	requestTimeout = 30 * time.Second
	// Time given to in-flight requests on shutdown.
	shutdownGracePeriod = 5 * time.Second
)

// Server exposes the solver and the trajectory sampler over HTTP, and streams solver
// progress over a websocket. It holds no state between requests other than metrics.
type Server struct {
	addr     string
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics
	router   *mux.Router
	// Default parallelism of the trajectory sampler.
	nworkers int
	// Rate at which streamed snapshots are published; zero selects the fastview default.
	publishInterval time.Duration
}

// NewServer builds the routes. A nil logger discards logs.
func NewServer(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	registry := prometheus.NewRegistry()
	server := &Server{
		addr:     addr,
		logger:   logger,
		registry: registry,
		metrics:  newMetrics(registry),
		nworkers: runtime.NumCPU(),
	}
	server.router = server.routes()
	return server
}

func (server *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(server.logRequests)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/value-iteration", server.serveSolve).Methods(http.MethodPost)
	v1.HandleFunc("/value-iteration/stream", server.serveSolveStream).Methods(http.MethodGet)
	v1.HandleFunc("/trajectories", server.serveTrajectories).Methods(http.MethodPost)

	router.HandleFunc("/healthz", serveHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(server.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}

// Handler returns the server's routes, e.g. for httptest.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (server *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              server.addr,
		Handler:           server.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		server.logger.Info("serving", "addr", server.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		server.logger.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return group.Wait()
}

func serveHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
