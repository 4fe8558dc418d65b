package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"despesas/internal/core"
	"despesas/internal/feed"
	"despesas/internal/log"
)

var errNoSnapshot = errors.New("collection not loaded yet")

// dashboardResponse is the derived data a dashboard renders.
type dashboardResponse struct {
	Mode       core.ViewMode      `json:"mode"`
	Month      core.MonthKey      `json:"month"`
	Total      core.Money         `json:"total"`
	Categories []core.NamedAmount `json:"categories"`
	People     []core.NamedAmount `json:"people"`
	History    core.History       `json:"history"`
	Colors     map[string]string  `json:"colors"`
	Records    int                `json:"records"`
	Version    uint64             `json:"version"`
	FromCache  bool               `json:"fromCache"`
}

// currentSnapshot returns the newest feed snapshot, refreshing once when
// none was taken yet. cacheable is false for snapshots read around the feed.
func (s *Server) currentSnapshot(ctx context.Context) (snap feed.Snapshot, cacheable bool, err error) {
	if s.feed == nil {
		records, err := s.expenses.List(ctx)
		if err != nil {
			return feed.Snapshot{}, false, err
		}
		return feed.Snapshot{Records: records, Taken: s.cfg.Clock()}, false, nil
	}
	if snap, ok := s.feed.Latest(); ok {
		return snap, true, nil
	}
	s.feed.Refresh(ctx)
	if snap, ok := s.feed.Latest(); ok {
		return snap, true, nil
	}
	return feed.Snapshot{}, false, errNoSnapshot
}

func (s *Server) buildDashboard(snap feed.Snapshot, mode core.ViewMode, today core.Date) dashboardResponse {
	agg := core.Aggregate(snap.Records, mode, today)
	hist := core.BuildHistory(snap.Records, s.catalog, today)

	colors := make(map[string]string, len(hist.Series))
	for _, series := range hist.Series {
		colors[series.Category] = s.catalog.Color(series.Category)
	}
	for name := range agg.ByCategory {
		colors[name] = s.catalog.Color(name)
	}

	return dashboardResponse{
		Mode:       agg.Mode,
		Month:      agg.Month,
		Total:      agg.Total,
		Categories: agg.Categories(),
		People:     agg.People(),
		History:    hist,
		Colors:     colors,
		Records:    len(agg.Filtered),
		Version:    snap.Version,
		FromCache:  snap.FromCache,
	}
}

// handleDashboard serves the aggregation and history of the latest
// snapshot. Results are cached per snapshot version, mode and month.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	mode, err := parseMode(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	snap, cacheable, err := s.currentSnapshot(r.Context())
	if err != nil {
		s.snapshotError(w, r, err)
		return
	}

	today := s.today()
	if !cacheable {
		NewJSONResponse().Body(s.buildDashboard(snap, mode, today)).Write(w)
		return
	}

	key := fmt.Sprintf("%d|%t|%s|%s", snap.Version, snap.FromCache, mode, today.MonthKey())
	resp := s.dashboard.GetOrCompute(key, func() dashboardResponse {
		return s.buildDashboard(snap, mode, today)
	})
	NewJSONResponse().Body(resp).Write(w)
}

// handleExport sends the records of the selected mode as a CSV attachment.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	mode, err := parseMode(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	snap, _, err := s.currentSnapshot(r.Context())
	if err != nil {
		s.snapshotError(w, r, err)
		return
	}

	today := s.today()
	records := core.Aggregate(snap.Records, mode, today).Filtered

	var buf bytes.Buffer
	if err := core.WriteCSV(&buf, records); err != nil {
		log.LogError(r.Context(), "Failed to render export", err, log.OpExport, nil)
		InternalServerError("export failed").Write(w)
		return
	}

	filename := core.ExportFilename(mode, today)
	log.FromContext(r.Context()).Fields(r.Context(), slog.LevelInfo, "Expenses exported",
		log.NewFields().WithOperation(log.OpExport).With(log.FieldMode, string(mode)).With(log.FieldRecords, len(records)))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) snapshotError(w http.ResponseWriter, r *http.Request, err error) {
	log.LogError(r.Context(), "Collection unavailable", err, log.OpSnapshot, nil)
	if errors.Is(err, errNoSnapshot) {
		ErrorResponse(http.StatusServiceUnavailable, err.Error()).Write(w)
		return
	}
	storeError(err).Write(w)
}
