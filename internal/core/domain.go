package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used on the wire and in storage.
const DateLayout = "2006-01-02"

// MaxDescriptionLen bounds free text entered by users.
const MaxDescriptionLen = 200

type (
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	User struct {
		ID     string `json:"id" toml:"id"`
		Name   string `json:"name" toml:"name"`
		Avatar string `json:"avatar" toml:"avatar"`
	}

	Category struct {
		Name  string `json:"name" toml:"name"`
		Color string `json:"color" toml:"color"`
	}

	// Expense is one record of the shared collection. UserName is
	// denormalized at creation time and never rewritten.
	Expense struct {
		ID          string    `json:"id"`
		Amount      Money     `json:"amount"`
		Description string    `json:"description"`
		Category    string    `json:"category"`
		Date        Date      `json:"date"`
		UserID      string    `json:"userId"`
		UserName    string    `json:"userName"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	// NewExpense is what a client submits; the store assigns ID and CreatedAt.
	NewExpense struct {
		Amount      Money  `json:"amount"`
		Description string `json:"description"`
		Category    string `json:"category"`
		Date        Date   `json:"date"`
		UserID      string `json:"userId"`
		UserName    string `json:"userName"`
	}

	// Patch carries the mutable subset of an expense. Nil fields are left alone.
	Patch struct {
		Amount      *Money  `json:"amount,omitempty"`
		Category    *string `json:"category,omitempty"`
		Description *string `json:"description,omitempty"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrNegativeAmount   = fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	ErrEmptyDescription = errors.New("empty description")
	ErrLongDescription  = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLen)
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyCategory    = errors.New("empty category")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrEmptyPatch       = errors.New("nothing to update")
	ErrUnknownUser      = errors.New("unknown user")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t as seen in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthKey returns the year-month the date falls in.
func (d Date) MonthKey() MonthKey {
	return MonthKey{Year: d.Year(), Month: d.Time.Month()}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD" or an empty string.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Amount == nil && p.Category == nil && p.Description == nil
}

// Apply returns e with the patch's fields written over it.
func (p Patch) Apply(e Expense) Expense {
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	return e
}

// Expense materializes a stored record from a submission.
func (n NewExpense) Expense(id string, createdAt time.Time) Expense {
	return Expense{
		ID:          id,
		Amount:      n.Amount,
		Description: n.Description,
		Category:    n.Category,
		Date:        n.Date,
		UserID:      n.UserID,
		UserName:    n.UserName,
		CreatedAt:   createdAt,
	}
}
