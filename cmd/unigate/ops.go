package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/unigate/backend/internal/observability"
)

type opsServer struct {
	server *http.Server
	logger *observability.Logger
}

// startOpsServer exposes /metrics, /health and /debug/pprof on addr.
func startOpsServer(addr string, metrics *observability.Metrics, health *observability.HealthChecker, logger *observability.Logger) *opsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", health.Handler())
	// pprof endpoints
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	s := &opsServer{
		server: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		logger: logger,
	}
	go func() {
		logger.Info("Observability server listening on " + addr + " (metrics, health, pprof)")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "Observability server error")
		}
	}()
	return s
}

func (s *opsServer) shutdown(ctx context.Context) {
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error(err, "failed to stop observability server")
	}
}
