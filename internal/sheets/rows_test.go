package sheets

import (
	"testing"
	"time"

	"despesas/internal/core"
)

func TestRow(t *testing.T) {
	e := core.Expense{
		ID:          "x1",
		Amount:      core.Money{Cents: 12345},
		Description: `Pizza "grande"`,
		Category:    "Lazer",
		Date:        core.NewDate(2024, 12, 31),
		UserName:    "Victor",
		CreatedAt:   time.Date(2025, 1, 1, 1, 2, 3, 0, time.FixedZone("BRT", -3*3600)),
	}
	row := Row(e)
	if len(row) != len(Header) {
		t.Fatalf("row has %d cells, header %d", len(row), len(Header))
	}
	want := []any{"x1", "2024-12-31", `Pizza "grande"`, "Victor", "Lazer", 123.45, "2025-01-01T04:02:03Z"}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("cell %d (%s) = %v, want %v", i, Header[i], row[i], want[i])
		}
	}
}

func TestIDsAndFindRow(t *testing.T) {
	values := [][]any{{"ID"}, {"a"}, {}, {" b "}, {""}}
	ids := IDs(values)
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("IDs() = %v", ids)
	}
	if got := FindRow(values, "b"); got != 4 {
		t.Fatalf("FindRow(b) = %d, want 4", got)
	}
	if got := FindRow(values, "zz"); got != 0 {
		t.Fatalf("FindRow(zz) = %d, want 0", got)
	}
}
