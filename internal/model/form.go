package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the only accepted due date format.
const DateLayout = "2006-01-02"

var ErrValidation = errors.New("validation error")

// FieldError describes one rejected form field.
type FieldError struct {
	Field   string
	Message string
}

func (fe FieldError) Error() string {
	return fmt.Sprintf("%s: %s", fe.Field, fe.Message)
}

// ValidationError collects every field problem found in a form so the user
// can fix them in one pass.
type ValidationError struct {
	Fields []FieldError
}

func (ve *ValidationError) Error() string {
	if len(ve.Fields) == 0 {
		return "validation error"
	}
	msgs := make([]string, 0, len(ve.Fields))
	for _, f := range ve.Fields {
		msgs = append(msgs, f.Error())
	}
	return "validation error: " + strings.Join(msgs, "; ")
}

func (ve *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (ve *ValidationError) add(field, message string) {
	ve.Fields = append(ve.Fields, FieldError{Field: field, Message: message})
}

// Form is raw user input as typed into the create or edit screen.
type Form struct {
	Name         string
	Description  string
	TimeEstimate string
	DueDate      string
}

// FormFromTask seeds an edit form with the current values of t.
func FormFromTask(t Task) Form {
	f := Form{
		Name:        t.Name,
		Description: t.Description,
		DueDate:     t.DueDate,
	}
	if t.TimeEstimate > 0 {
		f.TimeEstimate = strconv.Itoa(t.TimeEstimate)
	}
	return f
}

// Draft validates the form and converts it into a create request body.
func (f Form) Draft() (Draft, error) {
	ve := &ValidationError{}

	name := strings.TrimSpace(f.Name)
	if name == "" {
		ve.add("name", "is required")
	}
	description := strings.TrimSpace(f.Description)
	if description == "" {
		ve.add("description", "is required")
	}

	estimate, err := ParseTimeEstimate(f.TimeEstimate)
	if err != nil {
		ve.add("timeEstimate", err.Error())
	}

	due := strings.TrimSpace(f.DueDate)
	if err := ValidateDueDate(due); err != nil {
		ve.add("dueDate", err.Error())
	}

	if len(ve.Fields) > 0 {
		return Draft{}, ve
	}
	return Draft{
		Name:         name,
		Description:  description,
		TimeEstimate: estimate,
		DueDate:      due,
	}, nil
}

// Patch validates the form and converts it into an update request body.
func (f Form) Patch() (Patch, error) {
	d, err := f.Draft()
	if err != nil {
		return Patch{}, err
	}
	return Patch(d), nil
}

// ParseTimeEstimate accepts an empty string (no estimate) or a whole,
// non-negative number of hours.
func ParseTimeEstimate(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("must be a whole number of hours")
	}
	if n < 0 {
		return 0, errors.New("must not be negative")
	}
	return n, nil
}

// ValidateDueDate accepts an empty string or a calendar date in YYYY-MM-DD form.
func ValidateDueDate(s string) error {
	if s == "" {
		return nil
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil || d.Format(DateLayout) != s {
		return errors.New("must be a date in YYYY-MM-DD form")
	}
	return nil
}
