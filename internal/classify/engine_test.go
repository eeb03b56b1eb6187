package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/atlasgrowth23/lapermits/internal/permit"
)

var (
	appliedAt   = time.Date(2022, 1, 10, 0, 0, 0, 0, time.UTC)
	issuedAt    = time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	completedAt = time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
)

func record(status string, withIssue bool) permit.Record {
	p := permit.Record{Status: status, Applied: &appliedAt, Completed: &completedAt}
	if withIssue {
		p.Issued = &issuedAt
	}
	return p
}

func TestClassifyRules(t *testing.T) {
	tests := []struct {
		name      string
		permit    permit.Record
		status    MainStatus
		color     Color
		dateType  DateType
		smartDate *time.Time
	}{
		{"void beats issue date", record("Permit Void - Expired", true), StatusDead, ColorRed, DateApplied, &appliedAt},
		{"denied", record("Application DENIED", false), StatusDead, ColorRed, DateApplied, &appliedAt},
		{"expired", record("Expired", true), StatusDead, ColorRed, DateApplied, &appliedAt},
		{"completed", record("Completed", true), StatusCompleted, ColorBlue, DateCompleted, &completedAt},
		{"final inspection", record("Final Inspection Passed", false), StatusCompleted, ColorBlue, DateCompleted, &completedAt},
		{"certificate of occupancy", record("Certificate of Occupancy", true), StatusCompleted, ColorBlue, DateCompleted, &completedAt},
		{"issued by date", record("Permit Active", true), StatusIssued, ColorGreen, DateIssued, &issuedAt},
		{"issue date beats review text", record("In Review", true), StatusIssued, ColorGreen, DateIssued, &issuedAt},
		{"submitted", record("Submitted", false), StatusPending, ColorYellow, DateApplied, &appliedAt},
		{"under review", record("Under Review", false), StatusPending, ColorYellow, DateApplied, &appliedAt},
		{"approved", record("Approved - Awaiting Payment", false), StatusPending, ColorYellow, DateApplied, &appliedAt},
		{"other", record("On Hold", false), StatusOther, ColorYellow, DateApplied, &appliedAt},
		{"empty status", record("", false), StatusOther, ColorYellow, DateApplied, &appliedAt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.permit)
			assert.Equal(t, tt.status, got.MainStatus)
			assert.Equal(t, tt.color, got.StatusColor)
			assert.Equal(t, tt.dateType, got.DateType)
			assert.Equal(t, tt.smartDate, got.SmartDate)
		})
	}
}

func TestClassifyCompletedWithoutCompletionDate(t *testing.T) {
	p := permit.Record{Status: "Completed", Applied: &appliedAt}

	got := Classify(p)

	assert.Equal(t, StatusCompleted, got.MainStatus)
	assert.Nil(t, got.SmartDate)
	assert.Equal(t, DateCompleted, got.DateType)
}

func TestClassifyIsDeterministic(t *testing.T) {
	p := record("Permit Void - Expired", true)
	p.PermitClass = "Residential"

	first := Classify(p)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Classify(p))
	}
}

func TestProperty(t *testing.T) {
	tests := []struct {
		class string
		want  PropertyType
	}{
		{"Residential", PropertyResidential},
		{"RESIDENTIAL - Single Family", PropertyResidential},
		{"Non-Residential", PropertyResidential}, // substring match, kept as-is
		{"Commercial", PropertyCommercialMF},
		{"Multi-Family", PropertyCommercialMF},
		{"", PropertyCommercialMF},
	}

	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			assert.Equal(t, tt.want, Property(tt.class))
		})
	}
}

func TestSubStatus(t *testing.T) {
	assert.Equal(t, "Sub-Permits Issued", Classify(record("Sub-Permits Issued", false)).SubStatus)
	assert.Equal(t, "Sub-Permits Finaled", Classify(record("Sub Permit(s) Finaled", false)).SubStatus)
	assert.Equal(t, "", Classify(record("Permit Issued", true)).SubStatus)
}
