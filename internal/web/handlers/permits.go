package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/atlasgrowth23/lapermits/internal/classify"
	"github.com/atlasgrowth23/lapermits/internal/db"
	"github.com/atlasgrowth23/lapermits/internal/permit"
)

// PermitsHandler handles permit listing, detail and address history
type PermitsHandler struct {
	Reader           PermitReader
	Logger           *slog.Logger
	CuratedByDefault bool
}

// ClassifiedPermit is a stored permit with its derived classification
type ClassifiedPermit struct {
	permit.Record
	Classification classify.Result `json:"classification"`
}

// Pagination describes the page returned by ListPermits
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ListResponse is a classified page of permits
type ListResponse struct {
	Data       []ClassifiedPermit `json:"data"`
	Pagination Pagination         `json:"pagination"`
}

func classified(records []permit.Record) []ClassifiedPermit {
	out := make([]ClassifiedPermit, len(records))
	for i, r := range records {
		out[i] = ClassifiedPermit{Record: r, Classification: classify.Classify(r)}
	}
	return out
}

// ListPermits returns a filtered, sorted and paginated page of permits
func (h *PermitsHandler) ListPermits(w http.ResponseWriter, r *http.Request) {
	schema, ok := schemaFor(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()

	q := db.ListQuery{
		Search:     query.Get("search"),
		PermitType: query.Get("permitType"),
		Status:     query.Get("status"),
		SortBy:     query.Get("sortBy"),
		SortDesc:   !strings.EqualFold(query.Get("sortOrder"), "ASC"),
		Page:       parseIntParam(query.Get("page"), 1),
		Limit:      parseIntParam(query.Get("limit"), 50),
		Curated:    parseBoolParam(query.Get("curated"), h.CuratedByDefault),
	}

	page, err := h.Reader.ListPermits(r.Context(), schema.Source(), q)
	if err != nil {
		storeError(w, h.Logger, err, "Dataset table not found")
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{
		Data: classified(page.Permits),
		Pagination: Pagination{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      page.Total,
			TotalPages: page.TotalPages,
		},
	})
}

// GetPermit returns one permit with its classification
func (h *PermitsHandler) GetPermit(w http.ResponseWriter, r *http.Request) {
	schema, ok := schemaFor(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid permit id")
		return
	}

	p, err := h.Reader.GetPermit(r.Context(), schema.Source(), id)
	if err != nil {
		storeError(w, h.Logger, err, "Permit not found")
		return
	}
	writeJSON(w, http.StatusOK, ClassifiedPermit{Record: p, Classification: classify.Classify(p)})
}

// GetHistory returns every permit at the same address as {id}, newest
// application first, read from the full table
func (h *PermitsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	schema, ok := schemaFor(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid permit id")
		return
	}

	src := schema.Source()
	p, err := h.Reader.GetPermit(r.Context(), src, id)
	if err != nil {
		storeError(w, h.Logger, err, "Permit not found")
		return
	}

	history, err := h.Reader.AddressHistory(r.Context(), src, p.Address())
	if err != nil {
		storeError(w, h.Logger, err, "Permit not found")
		return
	}
	writeJSON(w, http.StatusOK, classified(history))
}
