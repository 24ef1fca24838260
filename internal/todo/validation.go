package todo

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrValidation matches every *ValidationError via errors.Is
var ErrValidation = errors.New("validation failed")

// FieldError describes one violated constraint
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError enumerates every field constraint an entry violated
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type validator struct {
	fields []FieldError
}

func (v *validator) check(ok bool, field, message string) {
	if !ok {
		v.fields = append(v.fields, FieldError{Field: field, Message: message})
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

func (v *validator) title(title string) {
	v.check(strings.TrimSpace(title) != "", "title", "must not be empty")
	v.check(utf8.RuneCountInString(title) <= MaxTitleLength, "title", fmt.Sprintf("must be at most %d characters", MaxTitleLength))
}

func (v *validator) description(description string) {
	v.check(strings.TrimSpace(description) != "", "description", "must not be empty")
	v.check(utf8.RuneCountInString(description) <= MaxDescriptionLength, "description", fmt.Sprintf("must be at most %d characters", MaxDescriptionLength))
}

func (v *validator) priority(p Priority) {
	v.check(p.Valid(), "priority", "must be one of low, medium, high")
}

func (v *validator) dueDate(due *int64) {
	if due != nil {
		v.check(*due > 0, "dueDate", "must be a positive timestamp")
		v.check(*due <= MaxDueDate, "dueDate", "is out of range")
	}
}

// Validate checks a complete entry
func (e Entry) Validate() error {
	var v validator
	v.check(e.ID != "", "id", "must not be empty")
	v.check(e.UserID != "", "userId", "must not be empty")
	v.title(e.Title)
	v.description(e.Description)
	v.priority(e.Priority)
	v.check(e.CreatedAt > 0, "createdAt", "must be a positive timestamp")
	v.dueDate(e.DueDate)
	return v.err()
}

// ValidateDraft checks the fields required to create an entry
func ValidateDraft(d Draft) error {
	var v validator
	v.check(d.UserID != "", "userId", "must not be empty")
	v.title(d.Title)
	v.description(d.Description)
	v.priority(d.Priority)
	v.dueDate(d.DueDate)
	return v.err()
}

// ValidatePatch checks only the fields the patch sets
func ValidatePatch(p Patch) error {
	var v validator
	v.check(!p.IsEmpty(), "patch", "must change at least one field")
	if p.Title != nil {
		v.title(*p.Title)
	}
	if p.Description != nil {
		v.description(*p.Description)
	}
	if p.Priority != nil {
		v.priority(*p.Priority)
	}
	v.dueDate(p.DueDate)
	return v.err()
}
