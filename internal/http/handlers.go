package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"despesas/internal/core"
	"despesas/internal/storage"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": s.cfg.Clock().Format(time.RFC3339),
		"uptime":    s.cfg.Clock().Sub(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady verifies the backing store and reports the server's
// auxiliary state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	checks["store"] = "ok"
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["store"] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	if s.feed != nil {
		snap, ok := s.feed.Latest()
		checks["feed"] = map[string]any{
			"has_snapshot": ok,
			"version":      snap.Version,
			"from_cache":   snap.FromCache,
		}
	}

	stats := s.dashboard.Stats()
	checks["cache"] = map[string]any{
		"entries": stats.Size,
		"hits":    stats.Hits,
		"misses":  stats.Misses,
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"refused":        s.limiter.Hits(),
	}
	checks["security"] = s.security.snapshot()

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": s.cfg.Clock().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

type catalogResponse struct {
	Users         []core.User     `json:"users"`
	Categories    []core.Category `json:"categories"`
	FallbackColor string          `json:"fallbackColor"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().
		Header("Cache-Control", "public, max-age=3600").
		Body(catalogResponse{
			Users:         s.catalog.Users(),
			Categories:    s.catalog.Categories(),
			FallbackColor: s.catalog.FallbackColor(),
		}).
		Write(w)
}

// storeError maps repository failures onto HTTP responses.
func storeError(err error) *JSONResponse {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NotFoundError("expense not found")
	case errors.Is(err, storage.ErrCollectionMissing):
		return NotFoundError("collection not found")
	case errors.Is(err, storage.ErrPermission):
		return ErrorResponse(http.StatusForbidden, "permission denied")
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorResponse(http.StatusGatewayTimeout, "store timed out")
	}
	return InternalServerError("store unavailable")
}
