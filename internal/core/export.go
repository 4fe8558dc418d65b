package core

import (
	"encoding/csv"
	"fmt"
	"io"
)

// CSVHeader is the first row of an export.
var CSVHeader = []string{"Date", "Description", "Person", "Category", "Amount"}

// WriteCSV writes expenses as comma-separated rows. Fields containing
// quotes, commas or newlines are quoted with embedded quotes doubled.
func WriteCSV(w io.Writer, expenses []Expense) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range expenses {
		if err := cw.Write(CSVRow(e)); err != nil {
			return fmt.Errorf("write csv row %s: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVRow renders one expense in export column order.
func CSVRow(e Expense) []string {
	return []string{e.Date.String(), e.Description, e.UserName, e.Category, e.Amount.String()}
}

// ExportFilename names an export for the given mode.
func ExportFilename(mode ViewMode, today Date) string {
	if mode == AllTime {
		return "despesas-todas.csv"
	}
	return fmt.Sprintf("despesas-%s.csv", today.MonthKey())
}
