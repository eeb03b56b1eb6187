package permit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestHistoryGroupsCaseInsensitively(t *testing.T) {
	records := []Record{
		{ID: 1, Street: "123 Main St", City: "New Orleans", State: "LA", Zip: "70112", Applied: day("2021-01-01")},
		{ID: 2, Street: "123 MAIN ST", City: "NEW ORLEANS", State: "la", Zip: "70112", Applied: day("2023-06-01")},
		{ID: 3, Street: "123 Main St", City: "New Orleans", State: "LA", Zip: "70113", Applied: day("2024-01-01")},
		{ID: 4, Street: "456 Canal St", City: "New Orleans", State: "LA", Zip: "70112", Applied: day("2022-01-01")},
	}

	got := History(records, Address{Street: "123 main st", City: "new orleans", State: "LA", Zip: "70112"})

	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID, "newest application first")
	assert.Equal(t, int64(1), got[1].ID)
}

func TestHistoryZipIsExact(t *testing.T) {
	records := []Record{
		{ID: 1, Street: "1 A St", City: "X", State: "LA", Zip: "70112"},
		{ID: 2, Street: "1 A St", City: "X", State: "LA", Zip: "70112-1234"},
	}

	got := History(records, Address{Street: "1 a st", City: "x", State: "la", Zip: "70112"})

	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
}

func TestHistoryNullDatesLast(t *testing.T) {
	records := []Record{
		{ID: 1, Street: "1 A St", Zip: "1"},
		{ID: 2, Street: "1 A St", Zip: "1", Applied: day("2020-01-01")},
		{ID: 3, Street: "1 A St", Zip: "1"},
		{ID: 4, Street: "1 A St", Zip: "1", Applied: day("2022-01-01")},
	}

	got := History(records, Address{Street: "1 A St", Zip: "1"})

	ids := make([]int64, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	assert.Equal(t, []int64{4, 2, 1, 3}, ids, "undated records keep source order at the end")
}

func TestGroupByAddress(t *testing.T) {
	records := []Record{
		{ID: 1, Street: "123 Main St", City: "NOLA", State: "LA", Zip: "70112", Applied: day("2021-01-01")},
		{ID: 2, Street: "9 Elm", City: "NOLA", State: "LA", Zip: "70112"},
		{ID: 3, Street: "123 MAIN ST", City: "nola", State: "LA", Zip: "70112", Applied: day("2022-01-01")},
	}

	groups := GroupByAddress(records)

	require.Len(t, groups, 2)
	assert.Equal(t, "123 main st", groups[0].Key.Street)
	require.Len(t, groups[0].Permits, 2)
	assert.Equal(t, int64(3), groups[0].Permits[0].ID)
	assert.Len(t, groups[1].Permits, 1)
}
