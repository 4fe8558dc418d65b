package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"despesas/internal/core"
	"despesas/internal/storage"
)

func sequence() (func() time.Time, func() string) {
	base := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	clock := func() time.Time { n++; return base.Add(time.Duration(n) * time.Second) }
	m := 0
	ids := func() string { m++; return fmt.Sprintf("id%d", m) }
	return clock, ids
}

func TestStoreAddListOrder(t *testing.T) {
	clock, ids := sequence()
	s := New(storage.WithClock(clock), storage.WithIDs(ids))
	ctx := context.Background()

	add := func(date string) core.Expense {
		d, _ := core.ParseDate(date)
		e, err := s.Add(ctx, core.NewExpense{Amount: core.Money{Cents: 100}, Description: "x", Category: "Mercado", Date: d, UserID: "u1", UserName: "Claudio"})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		return e
	}
	add("2024-01-10")
	add("2024-02-05")
	add("2024-02-05")

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := []string{list[0].ID, list[1].ID, list[2].ID}
	if got[0] != "id3" || got[1] != "id2" || got[2] != "id1" {
		t.Fatalf("unexpected order %v", got)
	}
	if list[0].CreatedAt.IsZero() {
		t.Fatalf("createdAt not assigned")
	}
}

func TestStorePatchRemove(t *testing.T) {
	s := New(storage.WithIDs(func() string { return "a" }))
	ctx := context.Background()
	if _, err := s.Add(ctx, core.NewExpense{Amount: core.Money{Cents: 100}, Description: "x", Category: "Lazer", UserName: "Victor"}); err != nil {
		t.Fatal(err)
	}

	cat := "Outros"
	e, err := s.Patch(ctx, "a", core.Patch{Category: &cat})
	if err != nil || e.Category != "Outros" || e.UserName != "Victor" {
		t.Fatalf("unexpected patch result %+v (%v)", e, err)
	}
	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(ctx, "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Patch(ctx, "a", core.Patch{Category: &cat}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
