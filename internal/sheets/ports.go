package sheets

import (
	"context"

	"despesas/internal/core"
)

// Ports for outbound adapters.
type (
	// Mirror is a spreadsheet copy of the expense collection keyed by id.
	Mirror interface {
		// Upsert writes e to its row, appending one when the id is new.
		Upsert(ctx context.Context, e core.Expense) (rowRef string, err error)
		// Delete removes the row for id. A missing row is not an error.
		Delete(ctx context.Context, id string) error
		// ListIDs returns the ids currently present, in sheet order.
		ListIDs(ctx context.Context) ([]string, error)
	}
)
