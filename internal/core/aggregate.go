package core

import (
	"fmt"
	"strings"
)

// ViewMode selects which records the aggregator considers.
type ViewMode string

const (
	CurrentMonth ViewMode = "month"
	AllTime      ViewMode = "all"
)

// ParseViewMode accepts the wire names plus a few spellings used in flags.
// An empty string means CurrentMonth.
func ParseViewMode(s string) (ViewMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "month", "current_month", "current-month":
		return CurrentMonth, nil
	case "all", "all_time", "all-time":
		return AllTime, nil
	}
	return "", fmt.Errorf("invalid view mode %q", s)
}

// Toggle flips between the two modes.
func (m ViewMode) Toggle() ViewMode {
	if m == AllTime {
		return CurrentMonth
	}
	return AllTime
}

// Aggregation is the derived summary of a record set for one view mode.
type Aggregation struct {
	Mode       ViewMode         `json:"mode"`
	Month      MonthKey         `json:"month"`
	Filtered   []Expense        `json:"-"`
	Total      Money            `json:"total"`
	ByCategory map[string]Money `json:"byCategory"`
	ByPerson   map[string]Money `json:"byPerson"`
}

// Aggregate filters expenses by mode relative to today and sums them by
// category and by person (display name). It does not modify its input.
func Aggregate(expenses []Expense, mode ViewMode, today Date) Aggregation {
	month := today.MonthKey()
	agg := Aggregation{
		Mode:       mode,
		Month:      month,
		Filtered:   make([]Expense, 0, len(expenses)),
		ByCategory: make(map[string]Money),
		ByPerson:   make(map[string]Money),
	}
	for _, e := range expenses {
		if mode != AllTime && e.Date.MonthKey() != month {
			continue
		}
		agg.Filtered = append(agg.Filtered, e)
		agg.Total = agg.Total.Add(e.Amount)
		agg.ByCategory[e.Category] = agg.ByCategory[e.Category].Add(e.Amount)
		agg.ByPerson[e.UserName] = agg.ByPerson[e.UserName].Add(e.Amount)
	}
	return agg
}

// Categories returns the per-category totals, largest first.
func (a Aggregation) Categories() []NamedAmount {
	return sortedAmounts(a.ByCategory)
}

// People returns the per-person totals, largest first.
func (a Aggregation) People() []NamedAmount {
	return sortedAmounts(a.ByPerson)
}

// Empty reports whether no record matched the mode.
func (a Aggregation) Empty() bool {
	return len(a.Filtered) == 0
}
