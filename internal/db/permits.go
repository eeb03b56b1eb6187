package db

import (
	"strings"

	"github.com/atlasgrowth23/lapermits/internal/permit"
)

// PermitColumns maps each canonical permit field to the stored column that
// feeds it. An empty name means the dataset does not carry that field.
type PermitColumns struct {
	PermitNumber  string
	Description   string
	Street        string
	City          string
	State         string
	Zip           string
	Applied       string
	Issued        string
	Completed     string
	StatusDate    string
	Status        string
	PermitClass   string
	PermitType    string
	WorkClass     string
	Contractor    string
	EstimatedCost string
	Fee           string
}

// PermitSource identifies one dataset table on the read side
type PermitSource struct {
	Dataset string
	Table   string
	Columns PermitColumns
}

// CuratedTable is the name of the curated subset of a dataset table
func (s PermitSource) CuratedTable() string {
	return s.Table + "_curated"
}

// Sort keys accepted by ListPermits
const (
	SortID            = "id"
	SortPermitNumber  = "permit_number"
	SortApplied       = "applied_date"
	SortIssued        = "issue_date"
	SortCompleted     = "completed_date"
	SortStatus        = "status"
	SortPermitType    = "permit_type"
	SortEstimatedCost = "estimated_cost"
)

// ListQuery filters, sorts and paginates a permit listing
type ListQuery struct {
	Search     string
	PermitType string
	Status     string
	SortBy     string
	SortDesc   bool
	Page       int
	Limit      int
	Curated    bool
}

// Normalized fills defaults: page 1, limit 50 (max 500), sort applied_date
func (q ListQuery) Normalized() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
	q.SortBy = strings.ToLower(q.SortBy)
	if _, ok := sortColumn(PermitColumns{}, q.SortBy); !ok {
		q.SortBy = SortApplied
		q.SortDesc = true
	}
	return q
}

// Offset is the number of rows skipped before this page
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// PermitPage is one page of a listing
type PermitPage struct {
	Permits    []permit.Record `json:"data"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	Total      int             `json:"total"`
	TotalPages int             `json:"totalPages"`
}

func newPage(records []permit.Record, q ListQuery, total int) PermitPage {
	pages := 0
	if q.Limit > 0 {
		pages = (total + q.Limit - 1) / q.Limit
	}
	if records == nil {
		records = []permit.Record{}
	}
	return PermitPage{Permits: records, Page: q.Page, Limit: q.Limit, Total: total, TotalPages: pages}
}

// sortColumn resolves a sort key to the mapped column. With zero columns it
// only reports whether the key is known.
func sortColumn(cols PermitColumns, key string) (string, bool) {
	switch strings.ToLower(key) {
	case SortID:
		return "id", true
	case SortPermitNumber:
		return cols.PermitNumber, true
	case SortApplied:
		return cols.Applied, true
	case SortIssued:
		return cols.Issued, true
	case SortCompleted:
		return cols.Completed, true
	case SortStatus:
		return cols.Status, true
	case SortPermitType:
		return cols.PermitType, true
	case SortEstimatedCost:
		return cols.EstimatedCost, true
	default:
		return "", false
	}
}
