package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cuemby/wsomgr/pkg/heart"
	"github.com/cuemby/wsomgr/pkg/log"
	"github.com/cuemby/wsomgr/pkg/metrics"
	"github.com/cuemby/wsomgr/pkg/repository"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// DomainLookup is the subset of the local hypervisor this package
// needs for its ad-hoc operator endpoints.
type DomainLookup interface {
	LookupIP(ctx context.Context, domainName string) (string, error)
	Delete(ctx context.Context, domainName string) error
}

// Trigger forces an out-of-cycle local VM reconciliation, backing the
// "/create_time/{name}" operator shortcut.
type Trigger interface {
	ReconcileNow(ctx context.Context) error
}

// Server is the thin HTTP/WebSocket admin surface named in spec.md §6:
// heartbeats in, a handful of operator shortcuts, a status table, and
// Prometheus metrics. None of it is on the convergence critical path.
type Server struct {
	router chi.Router
	logger zerolog.Logger
}

// New builds the router. heartHandler serves inbound heartbeats;
// store backs the status table; domains backs the ad-hoc shortcuts;
// trigger, if non-nil, backs "/create_time/{name}".
func New(heartHandler *heart.Handler, store repository.Store, domains DomainLookup, trigger Trigger, selfName string) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: log.WithComponent("api"),
	}

	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	r.Get("/heartbeats/{token}", heartHandler.ServeHTTP)

	h := &handlers{store: store, domains: domains, trigger: trigger, selfName: selfName, logger: s.logger}
	r.Get("/status", h.status)
	r.Get("/create_time/{name}", h.createTime)
	r.Get("/ip/{domain_name}", h.ip)
	r.Get("/delete/{name}", h.delete)
	r.Handle("/metrics", metrics.Handler())

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(rec, r)
		metrics.APIRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		metrics.APIRequestsTotal.WithLabelValues(r.Method, http.StatusText(rec.Status())).Inc()
	})
}
