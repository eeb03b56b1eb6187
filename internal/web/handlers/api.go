// Package handlers serves the permit read API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/atlasgrowth23/lapermits/internal/dataset"
	"github.com/atlasgrowth23/lapermits/internal/db"
	"github.com/atlasgrowth23/lapermits/internal/permit"
)

// PermitReader is the read side of a permit store
type PermitReader interface {
	Ping(ctx context.Context) error
	ListPermits(ctx context.Context, src db.PermitSource, q db.ListQuery) (db.PermitPage, error)
	GetPermit(ctx context.Context, src db.PermitSource, id int64) (permit.Record, error)
	AddressHistory(ctx context.Context, src db.PermitSource, addr permit.Address) ([]permit.Record, error)
}

// APIHandler handles general API endpoints
type APIHandler struct {
	Reader PermitReader
	Logger *slog.Logger
}

// DatasetInfo describes one registered dataset
type DatasetInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Table       string `json:"table"`
	Columns     int    `json:"columns"`
	Feed        string `json:"feed,omitempty"`
}

// HealthResponse reports store reachability
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ListDatasets returns every registered dataset
func (h *APIHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	schemas := dataset.All()
	out := make([]DatasetInfo, 0, len(schemas))
	for _, s := range schemas {
		info := DatasetInfo{
			Name:        s.Name,
			Description: s.Description,
			Table:       s.Table,
			Columns:     len(s.Rules),
		}
		if s.Feed != nil {
			info.Feed = s.Feed.URL
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// Health pings the store
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Reader.Ping(ctx); err != nil {
		h.Logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// schemaFor resolves the {dataset} route variable, writing a 404 when unknown
func schemaFor(w http.ResponseWriter, r *http.Request) (dataset.Schema, bool) {
	s, err := dataset.Lookup(mux.Vars(r)["dataset"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return dataset.Schema{}, false
	}
	return s, true
}

// storeError maps a store error to a response, logging anything unexpected
func storeError(w http.ResponseWriter, logger *slog.Logger, err error, msg string) {
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, msg)
		return
	}
	logger.Error("database error", "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

func parseBoolParam(s string, defaultVal bool) bool {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return v
}
