package sheets

import (
	"fmt"
	"strings"
	"time"

	"despesas/internal/core"
)

// Header is the first row of the mirror sheet.
var Header = []string{"ID", "Date", "Description", "Person", "Category", "Amount", "CreatedAt"}

// Row renders e in Header order. The amount is a plain number so the
// spreadsheet can sum it.
func Row(e core.Expense) []any {
	return []any{
		e.ID,
		e.Date.String(),
		e.Description,
		e.UserName,
		e.Category,
		e.Amount.Euros(),
		e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// IDs extracts the id column from sheet values, skipping the header and
// blank cells.
func IDs(values [][]any) []string {
	out := make([]string, 0, len(values))
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		id := strings.TrimSpace(fmt.Sprint(row[0]))
		if id == "" || (i == 0 && strings.EqualFold(id, Header[0])) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// FindRow returns the 1-based sheet row holding id, or 0.
func FindRow(values [][]any, id string) int {
	for i, row := range values {
		if len(row) > 0 && strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i + 1
		}
	}
	return 0
}
