package stats

import (
	"net/http"
	"time"

	"github.com/anjiru/duka-pos/internal/common"
)

// Handler exposes the sales overview read endpoints.
type Handler struct {
	Svc *Service
}

func (h *Handler) parseRange(r *http.Request) (time.Time, time.Time, bool) {
	query := r.URL.Query()
	fromStr := query.Get("from")
	toStr := query.Get("to")
	now := h.Svc.now()
	if fromStr != "" && toStr != "" {
		from, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		to, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		return from, to, from.Before(to)
	}
	days := h.Svc.DefaultRange
	if days <= 0 {
		days = 30
	}
	if raw := query.Get("days"); raw != "" {
		if parsed := common.AtoiDefault(raw, days); parsed > 0 {
			days = parsed
		}
	}
	return now.AddDate(0, 0, -days), now, true
}

// Overview handles GET /api/v1/stats/overview.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "STATS_NOT_CONFIGURED", "stats service not configured", nil)
		return
	}
	from, to, ok := h.parseRange(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid date range", nil)
		return
	}
	overview, err := h.Svc.SalesOverview(r.Context(), from, to)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "STATS_ERROR", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": overview})
}

// TopItems handles GET /api/v1/stats/top-items.
func (h *Handler) TopItems(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "STATS_NOT_CONFIGURED", "stats service not configured", nil)
		return
	}
	from, to, ok := h.parseRange(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid date range", nil)
		return
	}
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 10)
	items, err := h.Svc.TopItems(r.Context(), from, to, int32(limit))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "STATS_ERROR", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// Daily handles GET /api/v1/stats/daily.
func (h *Handler) Daily(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "STATS_NOT_CONFIGURED", "stats service not configured", nil)
		return
	}
	from, to, ok := h.parseRange(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid date range", nil)
		return
	}
	points, err := h.Svc.DailyRevenue(r.Context(), from, to)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "STATS_ERROR", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": points})
}
