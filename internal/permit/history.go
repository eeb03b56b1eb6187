package permit

import (
	"sort"

	"github.com/atlasgrowth23/lapermits/internal/normalize"
)

// Address is the (street, city, state, zip) tuple permits are grouped by
type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// Key is the normalized grouping key: street, city and state fold case, zip is exact
func (a Address) Key() Address {
	return Address{
		Street: normalize.Fold(a.Street),
		City:   normalize.Fold(a.City),
		State:  normalize.Fold(a.State),
		Zip:    a.Zip,
	}
}

// Matches reports whether two addresses share a history key
func (a Address) Matches(b Address) bool {
	return a.Key() == b.Key()
}

// HistoryGroup is every permit at one normalized address, newest application first
type HistoryGroup struct {
	Key     Address  `json:"key"`
	Permits []Record `json:"permits"`
}

// History returns the permits at addr ordered by applied date descending, nulls last.
// Pass the full record set: curated subsets under-report an address's history.
func History(records []Record, addr Address) []Record {
	key := addr.Key()
	var out []Record
	for _, r := range records {
		if r.Address().Key() == key {
			out = append(out, r)
		}
	}
	SortByAppliedDesc(out)
	return out
}

// GroupByAddress buckets records by normalized address. Groups come back in
// first-seen order; each group is sorted like History.
func GroupByAddress(records []Record) []HistoryGroup {
	index := make(map[Address]int)
	var groups []HistoryGroup
	for _, r := range records {
		key := r.Address().Key()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, HistoryGroup{Key: key})
		}
		groups[i].Permits = append(groups[i].Permits, r)
	}
	for i := range groups {
		SortByAppliedDesc(groups[i].Permits)
	}
	return groups
}

// SortByAppliedDesc orders records newest application first with undated records last
func SortByAppliedDesc(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].Applied, records[j].Applied
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
