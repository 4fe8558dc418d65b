package core

import "sort"

// HistoryMonths is the length of the trailing history window.
const HistoryMonths = 12

// CategorySeries holds one category's monthly totals across the window.
// Known is false for categories outside the fixed list.
type CategorySeries struct {
	Category string  `json:"category"`
	Known    bool    `json:"known"`
	Values   []Money `json:"values"`
}

// History is the stacked monthly breakdown of the last HistoryMonths months.
type History struct {
	Months []MonthKey       `json:"months"`
	Series []CategorySeries `json:"series"`
}

// BuildHistory bins expenses by (month of Date, category) over the
// HistoryMonths months ending at today's month, oldest first. Every known
// category gets a zero-filled series; unknown categories with data in the
// window are appended after them in name order.
func BuildHistory(expenses []Expense, cats Categories, today Date) History {
	last := today.MonthKey()
	first := last.AddMonths(-(HistoryMonths - 1))

	h := History{Months: make([]MonthKey, HistoryMonths)}
	index := make(map[MonthKey]int, HistoryMonths)
	for i := range h.Months {
		h.Months[i] = first.AddMonths(i)
		index[h.Months[i]] = i
	}

	var names []string
	if cats != nil {
		names = cats.CategoryNames()
	}
	bySeries := make(map[string]int, len(names))
	for _, name := range names {
		bySeries[name] = len(h.Series)
		h.Series = append(h.Series, CategorySeries{
			Category: name,
			Known:    true,
			Values:   make([]Money, HistoryMonths),
		})
	}

	extra := make(map[string][]Money)
	for _, e := range expenses {
		i, ok := index[e.Date.MonthKey()]
		if !ok {
			continue
		}
		if s, ok := bySeries[e.Category]; ok {
			h.Series[s].Values[i] = h.Series[s].Values[i].Add(e.Amount)
			continue
		}
		vals, ok := extra[e.Category]
		if !ok {
			vals = make([]Money, HistoryMonths)
			extra[e.Category] = vals
		}
		vals[i] = vals[i].Add(e.Amount)
	}

	unknown := make([]string, 0, len(extra))
	for name := range extra {
		unknown = append(unknown, name)
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		h.Series = append(h.Series, CategorySeries{Category: name, Values: extra[name]})
	}
	return h
}

// Totals returns the stacked height of every month.
func (h History) Totals() []Money {
	out := make([]Money, len(h.Months))
	for _, s := range h.Series {
		for i, v := range s.Values {
			out[i] = out[i].Add(v)
		}
	}
	return out
}

// Lookup returns the series for a category.
func (h History) Lookup(category string) (CategorySeries, bool) {
	for _, s := range h.Series {
		if s.Category == category {
			return s, true
		}
	}
	return CategorySeries{}, false
}
