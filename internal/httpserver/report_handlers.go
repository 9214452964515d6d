package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pogonboskrupa/sumarija-sub000/internal/fetcher"
	"github.com/pogonboskrupa/sumarija-sub000/internal/gateway"
	"github.com/pogonboskrupa/sumarija-sub000/internal/models"
)

// ReportHandler resolves dashboard report requests through the foreground
// cache gateway.
type ReportHandler struct {
	gateway *gateway.Gateway
	client  *fetcher.Client
	session fetcher.Session
	logger  *zap.Logger
	now     func() time.Time
}

// NewReportHandler creates a handler bound to the service session.
func NewReportHandler(gw *gateway.Gateway, client *fetcher.Client, session fetcher.Session, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		gateway: gw,
		client:  client,
		session: session,
		logger:  logger,
		now:     time.Now,
	}
}

// reportResponse is the JSON envelope returned for report requests.
type reportResponse struct {
	Success   bool             `json:"success"`
	Freshness models.Freshness `json:"freshness"`
	Data      json.RawMessage  `json:"data"`
}

// HandleReport handles GET /reports/{view}. The optional `year` parameter
// selects the reporting year, `refresh=1` forces a refetch.
func (h *ReportHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	view := mux.Vars(r)["view"]
	query := r.URL.Query()

	year := h.now().Year()
	if raw := query.Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, h.logger, "Invalid year parameter", http.StatusBadRequest)
			return
		}
		year = parsed
	}

	key, err := gateway.BuildKey(view, year)
	if err != nil {
		writeError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	forceRefresh := query.Get("refresh") == "1"

	sess := h.session
	sess.Year = year
	locator := h.client.Locator(sess, view, extraParams(query))

	payload, freshness, err := h.gateway.FetchWithCache(r.Context(), locator, key, forceRefresh)
	if err != nil {
		var upstream *models.UpstreamError
		if errors.As(err, &upstream) {
			writeError(w, h.logger, upstream.Message, http.StatusBadGateway)
			return
		}
		writeError(w, h.logger, "Report unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache-Freshness", string(freshness.State))
	w.Header().Set("X-Cache-Age-Ms", strconv.FormatInt(freshness.AgeMs, 10))
	if err := json.NewEncoder(w).Encode(reportResponse{
		Success:   true,
		Freshness: freshness,
		Data:      payload,
	}); err != nil {
		h.logger.Error("Failed to write report response", zap.Error(err))
	}
}

// HandleInvalidate handles DELETE /reports/{view}: drops every cached year
// of the view.
func (h *ReportHandler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	view := mux.Vars(r)["view"]
	if view == "" {
		writeError(w, h.logger, "Missing view", http.StatusBadRequest)
		return
	}

	deleted := h.gateway.Invalidate(view)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"deleted": deleted,
	}); err != nil {
		h.logger.Error("Failed to write invalidate response", zap.Error(err))
	}
}

// extraParams keeps caller parameters bound for the remote API, dropping
// the ones the handler itself consumes.
func extraParams(query url.Values) url.Values {
	extra := url.Values{}
	for key, vals := range query {
		if key == "year" || key == "refresh" {
			continue
		}
		for _, v := range vals {
			extra.Add(key, v)
		}
	}
	return extra
}

func writeError(w http.ResponseWriter, logger *zap.Logger, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	}); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
