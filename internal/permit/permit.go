// Package permit holds the read-side permit record shared by every dataset.
package permit

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is the canonical persisted permit as seen by the read layer.
// Fields a dataset does not carry are left zero/nil.
type Record struct {
	ID            int64            `json:"id"`
	Dataset       string           `json:"dataset"`
	PermitNumber  string           `json:"permit_number"`
	Description   string           `json:"description"`
	Street        string           `json:"street"`
	City          string           `json:"city"`
	State         string           `json:"state"`
	Zip           string           `json:"zip"`
	Applied       *time.Time       `json:"applied_date"`
	Issued        *time.Time       `json:"issue_date"`
	Completed     *time.Time       `json:"completed_date"`
	StatusAsOf    *time.Time       `json:"status_date"`
	Status        string           `json:"status"`
	PermitClass   string           `json:"permit_class"`
	PermitType    string           `json:"permit_type"`
	WorkClass     string           `json:"work_class"`
	Contractor    string           `json:"contractor"`
	EstimatedCost *decimal.Decimal `json:"estimated_cost"`
	Fee           *decimal.Decimal `json:"fee"`
}

// Address returns the record's address tuple
func (r Record) Address() Address {
	return Address{Street: r.Street, City: r.City, State: r.State, Zip: r.Zip}
}
