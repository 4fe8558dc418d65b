package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false},
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("case %d expected ErrInvalidDate, got %v", i, err)
		}
	}
}

func TestDateOfUsesLocation(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	// 01:30 UTC on March 1st is still February 28th in BRT.
	ts := time.Date(2024, 3, 1, 1, 30, 0, 0, time.UTC).In(loc)
	if got := DateOf(ts).String(); got != "2024-02-29" {
		t.Fatalf("expected 2024-02-29, got %s", got)
	}
}

func TestDateJSON(t *testing.T) {
	var d Date
	if err := json.Unmarshal([]byte(`"2024-02-15"`), &d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.MonthKey().String() != "2024-02" {
		t.Fatalf("unexpected month %s", d.MonthKey())
	}
	b, _ := json.Marshal(d)
	if string(b) != `"2024-02-15"` {
		t.Fatalf("unexpected json %s", b)
	}
	if err := json.Unmarshal([]byte(`"15/02/2024"`), &d); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestMonthKeyAddMonths(t *testing.T) {
	cases := []struct {
		from MonthKey
		n    int
		want string
	}{
		{MonthKey{2024, time.February}, -11, "2023-03"},
		{MonthKey{2024, time.January}, -1, "2023-12"},
		{MonthKey{2023, time.December}, 1, "2024-01"},
		{MonthKey{2024, time.June}, 0, "2024-06"},
		{MonthKey{2024, time.March}, -27, "2021-12"},
	}
	for _, tc := range cases {
		if got := tc.from.AddMonths(tc.n).String(); got != tc.want {
			t.Fatalf("%s%+d: expected %s, got %s", tc.from, tc.n, tc.want, got)
		}
	}
}

func TestPatchApply(t *testing.T) {
	e := Expense{ID: "a", Amount: Money{Cents: 100}, Category: "Lazer", Description: "x", UserName: "Tailma"}
	amt := Money{Cents: 250}
	desc := "cinema"
	got := Patch{Amount: &amt, Description: &desc}.Apply(e)
	if got.Amount.Cents != 250 || got.Description != "cinema" || got.Category != "Lazer" || got.UserName != "Tailma" {
		t.Fatalf("unexpected patched record %+v", got)
	}
	if !(Patch{}).Empty() {
		t.Fatalf("zero patch should be empty")
	}
}
