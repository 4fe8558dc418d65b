// Package http serves the shared expense collection: plain document
// operations, derived dashboard data, CSV export and the live feed.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"despesas/internal/cache"
	"despesas/internal/catalog"
	"despesas/internal/core"
	"despesas/internal/feed"
	"despesas/internal/log"
	"despesas/internal/metrics"
)

const (
	dashboardCacheTTL = 10 * time.Minute
	readyTimeout      = 5 * time.Second
)

// ExpenseStore is the document collection behind the API. The server does
// not validate records: clients do that before writing.
type ExpenseStore interface {
	List(ctx context.Context) ([]core.Expense, error)
	AddRecord(ctx context.Context, rec core.NewExpense) (string, error)
	PatchRecord(ctx context.Context, id string, p core.Patch) error
	RemoveRecord(ctx context.Context, id string) error
}

// SnapshotSource is the live feed plus access to its newest snapshot.
type SnapshotSource interface {
	feed.Feed
	Latest() (feed.Snapshot, bool)
	Refresh(ctx context.Context)
}

// Config tunes the HTTP layer.
type Config struct {
	Addr               string
	APIToken           string
	RateLimitPerMinute int
	DashboardCacheSize int
	Location           *time.Location
	Clock              func() time.Time
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Expenses ExpenseStore
	Feed     SnapshotSource
	Catalog  *catalog.Catalog
	Metrics  *metrics.Metrics
	Logger   *log.Logger
	// Ready reports whether the backing store is reachable.
	Ready func(ctx context.Context) error
}

// Server wraps http.Server with the API routes and their middleware.
type Server struct {
	http.Server

	cfg      Config
	expenses ExpenseStore
	feed     SnapshotSource
	catalog  *catalog.Catalog
	metrics  *metrics.Metrics
	logger   *log.Logger
	ready    func(ctx context.Context) error

	limiter   *rateLimiter
	security  *securityMetrics
	dashboard *cache.LRUCache[dashboardResponse]
	started   time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run server.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = defaultRateLimit
	}
	if cfg.DashboardCacheSize <= 0 {
		cfg.DashboardCacheSize = 64
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	cat := deps.Catalog
	if cat == nil {
		cat = catalog.Default()
	}

	s := &Server{
		cfg:       cfg,
		expenses:  deps.Expenses,
		feed:      deps.Feed,
		catalog:   cat,
		metrics:   deps.Metrics,
		logger:    logger.WithComponent(log.ComponentHTTP),
		ready:     deps.Ready,
		limiter:   newRateLimiter(cfg.RateLimitPerMinute, logger),
		security:  &securityMetrics{},
		dashboard: cache.NewLRUCache[dashboardResponse](cfg.DashboardCacheSize, dashboardCacheTTL),
		started:   cfg.Clock(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("GET /api/catalog", s.handleCatalog)
	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("PATCH /api/expenses/{id}", s.handlePatchExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/export", s.handleExport)
	if s.feed != nil {
		mux.Handle("GET /api/feed", feed.NewHandler(s.feed, logger))
	}

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.withMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// DashboardCache exposes the derived-data cache so a cache.Manager can
// sweep it.
func (s *Server) DashboardCache() cache.Cleaner {
	return s.dashboard
}

// Shutdown stops the limiter cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// today is the calendar date in the configured zone.
func (s *Server) today() core.Date {
	return core.DateOf(s.cfg.Clock().In(s.cfg.Location))
}
