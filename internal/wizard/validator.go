package wizard

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator is a pure check over the aggregate state.
type Validator func(Snapshot) []FieldError

// Rules runs every validator and collects all failures.
func Rules(vs ...Validator) Validator {
	return func(s Snapshot) []FieldError {
		var out []FieldError
		for _, v := range vs {
			out = append(out, v(s)...)
		}
		return out
	}
}

func Validate(s Snapshot, step StepName, v Validator) error {
	if v == nil {
		return nil
	}
	if errs := v(s); len(errs) > 0 {
		return &ValidationError{Step: step, Fields: errs}
	}
	return nil
}

func blank(v string) bool {
	return strings.TrimSpace(v) == ""
}

func label(field string) string {
	l := strings.ReplaceAll(field, "_", " ")
	return strings.ToUpper(l[:1]) + l[1:]
}

func Required(step StepName, fields ...string) Validator {
	return func(s Snapshot) []FieldError {
		var out []FieldError
		for _, f := range fields {
			if blank(s.Value(step, f)) {
				out = append(out, FieldError{Field: f, Message: label(f) + " is required"})
			}
		}
		return out
	}
}

// RequiredWhen evaluates cond against the state at validation time.
func RequiredWhen(cond func(Snapshot) bool, step StepName, fields ...string) Validator {
	req := Required(step, fields...)
	return func(s Snapshot) []FieldError {
		if !cond(s) {
			return nil
		}
		return req(s)
	}
}

// OneOf fails on a non-blank value outside allowed; blanks are left to Required.
func OneOf(step StepName, field string, allowed ...string) Validator {
	return func(s Snapshot) []FieldError {
		v := strings.TrimSpace(s.Value(step, field))
		if v == "" || slices.Contains(allowed, v) {
			return nil
		}
		return []FieldError{{
			Field:   field,
			Message: fmt.Sprintf("%s must be one of %s", label(field), strings.Join(allowed, ", ")),
		}}
	}
}

// Positive requires a number greater than zero; optional fields may be blank.
func Positive(step StepName, field string, optional bool) Validator {
	return func(s Snapshot) []FieldError {
		v := strings.TrimSpace(s.Value(step, field))
		if v == "" {
			if optional {
				return nil
			}
			return []FieldError{{Field: field, Message: label(field) + " is required"}}
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n <= 0 {
			return []FieldError{{Field: field, Message: label(field) + " must be greater than zero"}}
		}
		return nil
	}
}

// Check wraps an ad-hoc predicate; ok returning false fails field with msg.
func Check(field, msg string, ok func(Snapshot) bool) Validator {
	return func(s Snapshot) []FieldError {
		if ok(s) {
			return nil
		}
		return []FieldError{{Field: field, Message: msg}}
	}
}
