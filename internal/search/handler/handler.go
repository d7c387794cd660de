package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/goodfilms/picky/internal/query"
	"github.com/goodfilms/picky/internal/search"
	"github.com/goodfilms/picky/internal/search/cache"
	apperrors "github.com/goodfilms/picky/pkg/errors"
	"github.com/goodfilms/picky/pkg/logger"
	"github.com/goodfilms/picky/pkg/metrics"
)

type Searcher interface {
	Normalize(req search.Request) (search.Request, error)
	Search(ctx context.Context, req search.Request) (*query.Results, error)
}

// Response is the body of a successful search.
type Response struct {
	query.Snapshot
	Amount   int     `json:"amount"`
	IDs      []int64 `json:"ids"`
	CacheHit bool    `json:"cache_hit"`
}

type Handler struct {
	searcher Searcher
	cache    *cache.QueryCache
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New builds a Handler. queryCache and m may be nil.
func New(searcher Searcher, queryCache *cache.QueryCache, m *metrics.Metrics) *Handler {
	return &Handler{
		searcher: searcher,
		cache:    queryCache,
		metrics:  m,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	req, err := parseRequest(r)
	if err == nil {
		req, err = h.searcher.Normalize(req)
	}
	if err != nil {
		h.observe("error", "none", start)
		h.writeError(w, err)
		return
	}

	compute := func(ctx context.Context) (*query.Snapshot, error) {
		results, err := h.searcher.Search(ctx, req)
		if err != nil {
			return nil, err
		}
		snap := results.Snapshot()
		return &snap, nil
	}

	var snap *query.Snapshot
	cacheHit := false
	cacheStatus := "disabled"
	if h.cache != nil {
		key := cache.Key{Query: req.Query, Amount: req.Amount, Offset: req.Offset, Unique: req.Unique}
		snap, cacheHit, err = h.cache.GetOrCompute(ctx, key, compute)
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
	} else {
		snap, err = compute(ctx)
	}
	if err != nil {
		log.Error("search failed", "query", req.Query, "error", err)
		h.observe("error", cacheStatus, start)
		h.writeError(w, err)
		return
	}

	resultType := "hit"
	if snap.Total == 0 {
		resultType = "zero_result"
	}
	h.observe(resultType, cacheStatus, start)

	resp := Response{
		Snapshot: *snap,
		Amount:   req.Amount,
		IDs:      snap.IDs(req.Amount),
		CacheHit: cacheHit,
	}
	log.Info("search completed",
		"query", req.Query,
		"total", snap.Total,
		"returned", len(resp.IDs),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrCacheUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, apperrors.New(apperrors.ErrCacheUnavailable, http.StatusServiceUnavailable, "cache invalidation failed"))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func parseRequest(r *http.Request) (search.Request, error) {
	params := r.URL.Query()
	req := search.Request{Query: params.Get("q")}
	if req.Query == "" {
		return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required")
	}
	var err error
	if req.Amount, err = intParam(params.Get("amount"), "amount"); err != nil {
		return req, err
	}
	if req.Offset, err = intParam(params.Get("offset"), "offset"); err != nil {
		return req, err
	}
	if v := params.Get("unique"); v != "" {
		if req.Unique, err = strconv.ParseBool(v); err != nil {
			return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "unique must be a boolean")
		}
	}
	return req, nil
}

func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%s must be a non-negative integer", name)
	}
	return n, nil
}

func (h *Handler) observe(resultType, cacheStatus string, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := "search failed"
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		message = appErr.Message
	case status < http.StatusInternalServerError || status == http.StatusServiceUnavailable:
		message = err.Error()
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
