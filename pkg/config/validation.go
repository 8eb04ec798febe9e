package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// FieldError is one invalid configuration field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldErrors collects every invalid field of a configuration.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fe.Error())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Fields returns the names of the invalid fields.
func (e FieldErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, fe := range e {
		fields = append(fields, fe.Field)
	}
	return fields
}

// Validator accumulates field errors through chained checks.
type Validator struct {
	errs FieldErrors
}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) add(field, message string) *Validator {
	v.errs = append(v.errs, FieldError{Field: field, Message: message})
	return v
}

// Required fails on a blank value.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		return v.add(field, "is required")
	}
	return v
}

// URL fails on a value that is not an absolute URL. Empty passes.
func (v *Validator) URL(field, value string) *Validator {
	if value == "" {
		return v
	}
	u, err := url.Parse(value)
	if err != nil {
		return v.add(field, fmt.Sprintf("invalid URL: %v", err))
	}
	if u.Scheme == "" || u.Host == "" {
		return v.add(field, "must be a URL with scheme and host")
	}
	return v
}

// Min fails when value < min.
func (v *Validator) Min(field string, value, min int) *Validator {
	if value < min {
		return v.add(field, fmt.Sprintf("must be at least %d", min))
	}
	return v
}

// MinFloat fails when value < min.
func (v *Validator) MinFloat(field string, value, min float64) *Validator {
	if value < min {
		return v.add(field, fmt.Sprintf("must be at least %g", min))
	}
	return v
}

// MinDuration fails when value < min.
func (v *Validator) MinDuration(field string, value, min time.Duration) *Validator {
	if value < min {
		return v.add(field, fmt.Sprintf("must be at least %v", min))
	}
	return v
}

// OneOf fails when value is not one of allowed. Empty passes.
func (v *Validator) OneOf(field, value string, allowed ...string) *Validator {
	if value == "" {
		return v
	}
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	return v.add(field, "must be one of: "+strings.Join(allowed, ", "))
}

// FileExists fails when path is set but is not a readable file.
func (v *Validator) FileExists(field, path string) *Validator {
	if path == "" {
		return v
	}
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return v.add(field, "file does not exist")
	case err != nil:
		return v.add(field, fmt.Sprintf("cannot access file: %v", err))
	case info.IsDir():
		return v.add(field, "is a directory, expected file")
	}
	return v
}

// Custom fails with message when ok is false.
func (v *Validator) Custom(field string, ok bool, message string) *Validator {
	if !ok {
		return v.add(field, message)
	}
	return v
}

// Err returns the collected errors, or nil.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return v.errs
}
