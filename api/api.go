// Package api serves the read-only status surface: health, metrics, recent
// alerts, blocked addresses and the active and pending rule sets.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"argus/core"
	"argus/soar"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	// DefaultAlertLimit is used when the limit query parameter is absent
	DefaultAlertLimit = 100
	// MaxAlertLimit caps the limit query parameter
	MaxAlertLimit = 1000

	rateLimiterIdleTTL     = time.Hour
	rateLimiterCleanupTick = 10 * time.Minute
)

// Config holds the status server settings
type Config struct {
	Addr              string
	RequestsPerSecond float64
	Burst             int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// RuleLister returns the active rule set
type RuleLister interface {
	Rules() []*core.RuleDefinition
}

// PendingLister returns candidate rules awaiting review
type PendingLister interface {
	Pending(ctx context.Context) ([]*core.RuleDefinition, error)
}

// CountsProvider reports pipeline throughput for the health check
type CountsProvider interface {
	Counts() (ingested, alerts uint64)
}

// Sources holds what the API reads from. Any of them may be nil; the
// matching endpoint then answers 503.
type Sources struct {
	Alerts    *AlertHistory
	Blocklist soar.BlocklistReader
	Rules     RuleLister
	Pending   PendingLister
	Counts    CountsProvider
}

// API holds the status server
type API struct {
	router  *mux.Router
	server  *http.Server
	cfg     Config
	sources Sources
	logger  *zap.SugaredLogger
	started time.Time

	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// NewAPI creates a new status server
func NewAPI(cfg Config, sources Sources, logger *zap.SugaredLogger) *API {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	a := &API{
		router:       mux.NewRouter(),
		cfg:          cfg,
		sources:      sources,
		logger:       logger,
		started:      time.Now(),
		rateLimiters: make(map[string]*rateLimiterEntry),
		stopCh:       make(chan struct{}),
	}
	a.setupRoutes()
	a.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      a.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	go a.cleanupRateLimiters()
	return a
}

func (a *API) setupRoutes() {
	if a.cfg.RequestsPerSecond > 0 {
		a.router.Use(a.rateLimitMiddleware)
	}
	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	a.router.HandleFunc("/api/alerts", a.getAlerts).Methods("GET")
	a.router.HandleFunc("/api/blocked_ips", a.getBlockedIPs).Methods("GET")
	a.router.HandleFunc("/api/rules", a.getRules).Methods("GET")
	a.router.HandleFunc("/api/rules/pending", a.getPendingRules).Methods("GET")
}

// Handler returns the routed handler, used by tests and embedding servers
func (a *API) Handler() http.Handler {
	return a.router
}

// Start serves until Stop is called. It returns nil on a clean shutdown.
func (a *API) Start() error {
	a.logger.Infow("Status API listening", "addr", a.cfg.Addr)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the server and the limiter janitor
func (a *API) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	return a.server.Shutdown(ctx)
}
