package core

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Categories is the fixed category list a record may be filed under.
type Categories interface {
	HasCategory(name string) bool
	CategoryNames() []string
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Draft is raw form input for a new expense.
type Draft struct {
	Amount      string
	Description string
	Category    string
	Date        string // empty means today
}

// PatchDraft is raw form input for an edit. Nil fields are untouched;
// date and owner are not editable.
type PatchDraft struct {
	Amount      *string
	Category    *string
	Description *string
}

// Parse validates the draft and builds the record to submit for user.
// All field problems are reported together.
func (d Draft) Parse(cats Categories, user User, today Date) (NewExpense, error) {
	var errs []error
	field := func(name string, err error) {
		errs = append(errs, &ValidationError{Field: name, Err: err})
	}

	amount, err := ParseAmount(d.Amount)
	if err != nil {
		field("amount", err)
	}
	desc, err := checkDescription(d.Description)
	if err != nil {
		field("description", err)
	}
	if err := checkCategory(cats, d.Category); err != nil {
		field("category", err)
	}
	date := today
	if strings.TrimSpace(d.Date) != "" {
		if date, err = ParseDate(d.Date); err != nil {
			field("date", err)
		}
	}
	if err := date.Validate(); err != nil && len(errs) == 0 {
		field("date", err)
	}
	if strings.TrimSpace(user.ID) == "" {
		field("user", ErrUnknownUser)
	}
	if len(errs) > 0 {
		return NewExpense{}, errors.Join(errs...)
	}

	return NewExpense{
		Amount:      amount,
		Description: desc,
		Category:    d.Category,
		Date:        date,
		UserID:      user.ID,
		UserName:    user.Name,
	}, nil
}

// Parse validates the edit and builds the patch.
func (p PatchDraft) Parse(cats Categories) (Patch, error) {
	var (
		out  Patch
		errs []error
	)
	if p.Amount != nil {
		amount, err := ParseAmount(*p.Amount)
		if err != nil {
			errs = append(errs, &ValidationError{Field: "amount", Err: err})
		} else {
			out.Amount = &amount
		}
	}
	if p.Description != nil {
		desc, err := checkDescription(*p.Description)
		if err != nil {
			errs = append(errs, &ValidationError{Field: "description", Err: err})
		} else {
			out.Description = &desc
		}
	}
	if p.Category != nil {
		if err := checkCategory(cats, *p.Category); err != nil {
			errs = append(errs, &ValidationError{Field: "category", Err: err})
		} else {
			c := *p.Category
			out.Category = &c
		}
	}
	if len(errs) > 0 {
		return Patch{}, errors.Join(errs...)
	}
	if out.Empty() {
		return Patch{}, &ValidationError{Field: "patch", Err: ErrEmptyPatch}
	}
	return out, nil
}

func checkDescription(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyDescription
	}
	if utf8.RuneCountInString(s) > MaxDescriptionLen {
		return "", ErrLongDescription
	}
	return s, nil
}

func checkCategory(cats Categories, name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyCategory
	}
	if cats != nil && !cats.HasCategory(name) {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
	return nil
}
