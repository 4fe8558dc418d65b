package core

import (
	"fmt"
	"sort"
	"time"
)

// NamedAmount represents an amount aggregated under a category or person name.
type NamedAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// MonthKey identifies a calendar month.
type MonthKey struct {
	Year  int
	Month time.Month
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// AddMonths moves the key n months forward (or back when n < 0).
func (k MonthKey) AddMonths(n int) MonthKey {
	idx := k.Year*12 + int(k.Month) - 1 + n
	return MonthKey{Year: idx / 12, Month: time.Month(idx%12 + 1)}
}

// Before reports whether k is strictly earlier than o.
func (k MonthKey) Before(o MonthKey) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	return k.Month < o.Month
}

func (k MonthKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *MonthKey) UnmarshalText(b []byte) error {
	t, err := time.Parse("2006-01", string(b))
	if err != nil {
		return fmt.Errorf("invalid month %q: %w", string(b), err)
	}
	*k = MonthKey{Year: t.Year(), Month: t.Month()}
	return nil
}

// sortedAmounts orders a map by amount descending, then name.
func sortedAmounts(m map[string]Money) []NamedAmount {
	out := make([]NamedAmount, 0, len(m))
	for name, amt := range m {
		out = append(out, NamedAmount{Name: name, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}
