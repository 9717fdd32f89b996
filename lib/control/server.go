package control

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-i2p/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"

	"github.com/conngate/conngate/lib/admission"
	"github.com/conngate/conngate/lib/directory"
	"github.com/conngate/conngate/lib/gateway"
)

// Options configures the control server.
type Options struct {
	// Address is the listen address, "host:port".
	Address string
	// AuthToken protects /api routes when non-empty.
	AuthToken string
	// ShutdownTimeout bounds the drain period on Stop.
	ShutdownTimeout time.Duration
	// Defaults is echoed on /api/status so operators see the effective
	// fallback limits.
	Defaults admission.Defaults
	// Metrics, when non-nil, exposes the Prometheus registry on /metrics.
	Metrics prometheus.Gatherer
}

// Server is the control API's HTTP server.
type Server struct {
	opts       Options
	directory  directory.Directory
	gateway    *gateway.Gateway
	httpServer *http.Server
	startTime  time.Time
	wg         sync.WaitGroup
}

// NewServer builds the control server. It does not listen until Start.
func NewServer(opts Options, dir directory.Directory, gw *gateway.Gateway) (*Server, error) {
	if opts.Address == "" {
		return nil, oops.Errorf("control: listen address cannot be empty")
	}
	if dir == nil || gw == nil {
		return nil, oops.Errorf("control: directory and gateway are required")
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		opts:      opts,
		directory: dir,
		gateway:   gw,
		startTime: time.Now(),
	}

	s.httpServer = &http.Server{
		Addr:         opts.Address,
		Handler:      s.router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// router assembles the route tree. Liveness and metrics stay outside the
// authenticated subtree so probes and scrapers need no credentials.
func (s *Server) router() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.opts.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/status", s.handleStatus)
		r.Get("/groups", s.handleGroups)
		r.Get("/groups/{identifier}", s.handleGroupDetail)
		r.Get("/groups/{identifier}/sessions", s.handleScopeSessions)
		r.Get("/connections", s.handleConnections)
		r.Get("/connections/{identifier}", s.handleConnectionDetail)
		r.Get("/connections/{identifier}/sessions", s.handleScopeSessions)
		r.Get("/sessions", s.handleSessions)
		r.Delete("/sessions/{id}", s.handleKillSession)
	})

	return r
}

// Start begins serving in a background goroutine and returns immediately.
func (s *Server) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.WithFields(logger.Fields{
			"at":      "(Server).Start",
			"address": s.opts.Address,
			"auth":    s.opts.AuthToken != "",
		}).Info("control server listening")

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).WithFields(logger.Fields{
				"at": "(Server).Start",
			}).Error("control server error")
		}
	}()
}

// Stop drains in-flight requests within the shutdown timeout, then waits
// for the serve goroutine. Safe to call on a server that never started.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"at": "(Server).Stop",
		}).Error("error during control server shutdown")
	}
	s.wg.Wait()

	log.WithFields(logger.Fields{
		"at": "(Server).Stop",
	}).Info("control server stopped")
}

// Close implements io.Closer for the daemon's shared shutdown path.
func (s *Server) Close() error {
	s.Stop()
	return nil
}
