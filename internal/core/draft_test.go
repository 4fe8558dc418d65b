package core

import (
	"errors"
	"testing"
)

type fixedCategories []string

func (f fixedCategories) HasCategory(name string) bool {
	for _, c := range f {
		if c == name {
			return true
		}
	}
	return false
}

func (f fixedCategories) CategoryNames() []string { return f }

var testCats = fixedCategories{"Mercado", "Lazer", "Outros"}

func TestDraftParse(t *testing.T) {
	user := User{ID: "u1", Name: "Claudio"}
	today := NewDate(2024, 2, 10)

	got, err := Draft{Amount: "12,50", Description: " pão ", Category: "Mercado"}.Parse(testCats, user, today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Amount.Cents != 1250 || got.Description != "pão" || got.Date != today {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.UserID != "u1" || got.UserName != "Claudio" {
		t.Fatalf("user not attached: %+v", got)
	}

	cases := []struct {
		name  string
		draft Draft
		want  error
	}{
		{"empty amount", Draft{Amount: "", Description: "x", Category: "Mercado"}, ErrInvalidAmount},
		{"negative amount", Draft{Amount: "-3", Description: "x", Category: "Mercado"}, ErrNegativeAmount},
		{"blank description", Draft{Amount: "1", Description: "  ", Category: "Mercado"}, ErrEmptyDescription},
		{"unknown category", Draft{Amount: "1", Description: "x", Category: "Viagem"}, ErrUnknownCategory},
		{"bad date", Draft{Amount: "1", Description: "x", Category: "Lazer", Date: "2024-13-01"}, ErrInvalidDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.draft.Parse(testCats, user, today)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected a ValidationError, got %T", err)
			}
		})
	}
}

func TestDraftParseReportsEveryField(t *testing.T) {
	_, err := Draft{}.Parse(testCats, User{ID: "u1"}, NewDate(2024, 1, 1))
	for _, want := range []error{ErrInvalidAmount, ErrEmptyDescription, ErrEmptyCategory} {
		if !errors.Is(err, want) {
			t.Fatalf("expected %v in %v", want, err)
		}
	}
}

func TestPatchDraftParse(t *testing.T) {
	amount := "7.5"
	cat := "Lazer"
	p, err := PatchDraft{Amount: &amount, Category: &cat}.Parse(testCats)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Amount.Cents != 750 || *p.Category != "Lazer" || p.Description != nil {
		t.Fatalf("unexpected patch %+v", p)
	}

	if _, err := (PatchDraft{}).Parse(testCats); !errors.Is(err, ErrEmptyPatch) {
		t.Fatalf("expected ErrEmptyPatch, got %v", err)
	}
	bad := "Viagem"
	if _, err := (PatchDraft{Category: &bad}).Parse(testCats); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}
