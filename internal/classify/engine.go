// Package classify derives status, smart date and property type from a permit.
//
// Rules are evaluated in order and the first match wins. The order is part of
// the contract: a status of "Permit Void - Expired" on an issued permit is Dead,
// not Issued.
package classify

import (
	"strings"
	"time"

	"github.com/atlasgrowth23/lapermits/internal/normalize"
	"github.com/atlasgrowth23/lapermits/internal/permit"
)

// MainStatus is the coarse lifecycle bucket shown in listings
type MainStatus string

const (
	StatusDead      MainStatus = "Dead"
	StatusCompleted MainStatus = "Completed"
	StatusIssued    MainStatus = "Issued"
	StatusPending   MainStatus = "Pending"
	StatusOther     MainStatus = "Other"
)

// Color is the badge color paired with a MainStatus
type Color string

const (
	ColorRed    Color = "red"
	ColorBlue   Color = "blue"
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
)

// DateType names which lifecycle date was picked as the smart date
type DateType string

const (
	DateApplied   DateType = "Applied"
	DateCompleted DateType = "Completed"
	DateIssued    DateType = "Issued"
)

// PropertyType is a deliberately coarse two-way split
type PropertyType string

const (
	PropertyResidential  PropertyType = "Residential"
	PropertyCommercialMF PropertyType = "Commercial-MF"
)

// Result is derived on every read and never persisted
type Result struct {
	MainStatus   MainStatus   `json:"main_status"`
	StatusColor  Color        `json:"status_color"`
	SmartDate    *time.Time   `json:"smart_date"`
	DateType     DateType     `json:"date_type"`
	PropertyType PropertyType `json:"property_type"`
	SubStatus    string       `json:"sub_status,omitempty"`
}

type rule struct {
	matches  func(status string, p permit.Record) bool
	status   MainStatus
	color    Color
	dateType DateType
	date     func(p permit.Record) *time.Time
}

func applied(p permit.Record) *time.Time   { return p.Applied }
func completed(p permit.Record) *time.Time { return p.Completed }
func issued(p permit.Record) *time.Time    { return p.Issued }

func statusContainsAny(substrings ...string) func(string, permit.Record) bool {
	return func(status string, _ permit.Record) bool {
		for _, s := range substrings {
			if strings.Contains(status, s) {
				return true
			}
		}
		return false
	}
}

func hasIssueDate(_ string, p permit.Record) bool { return p.Issued != nil }

// rules is ordered; do not turn it into a map.
var rules = []rule{
	{statusContainsAny("void", "denied", "expired"), StatusDead, ColorRed, DateApplied, applied},
	{statusContainsAny("complet", "final", "occupancy"), StatusCompleted, ColorBlue, DateCompleted, completed},
	{hasIssueDate, StatusIssued, ColorGreen, DateIssued, issued},
	{statusContainsAny("submit", "review", "approv"), StatusPending, ColorYellow, DateApplied, applied},
}

var fallback = rule{status: StatusOther, color: ColorYellow, dateType: DateApplied, date: applied}

// subStatuses are ordered-fragment patterns, i.e. LIKE '%sub%permit%issued%'
var subStatuses = []struct {
	fragments []string
	label     string
}{
	{[]string{"sub", "permit", "issued"}, "Sub-Permits Issued"},
	{[]string{"sub", "permit", "final"}, "Sub-Permits Finaled"},
}

// Classify maps a permit to its derived classification. It reads nothing but
// the record, so repeated calls on the same values give the same result.
func Classify(p permit.Record) Result {
	status := normalize.Fold(p.Status)

	chosen := fallback
	for _, r := range rules {
		if r.matches(status, p) {
			chosen = r
			break
		}
	}

	return Result{
		MainStatus:   chosen.status,
		StatusColor:  chosen.color,
		SmartDate:    chosen.date(p),
		DateType:     chosen.dateType,
		PropertyType: Property(p.PermitClass),
		SubStatus:    subStatus(status),
	}
}

// Property maps a permit class to Residential or Commercial-MF
func Property(permitClass string) PropertyType {
	if normalize.ContainsFold(permitClass, "residential") {
		return PropertyResidential
	}
	return PropertyCommercialMF
}

func subStatus(status string) string {
	for _, s := range subStatuses {
		if containsInOrder(status, s.fragments) {
			return s.label
		}
	}
	return ""
}

func containsInOrder(s string, fragments []string) bool {
	for _, f := range fragments {
		i := strings.Index(s, f)
		if i < 0 {
			return false
		}
		s = s[i+len(f):]
	}
	return true
}
