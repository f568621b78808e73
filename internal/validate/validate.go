// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package validate accumulates field validation errors for configuration and
// request inputs.
package validate

import (
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"
	"time"

	platformnet "github.com/ManuGH/fingate/internal/platform/net"
)

// Error represents a validation error
type Error struct {
	Field   string // Field name that failed validation
	Value   any    // The invalid value
	Message string // Human-readable error message
}

// Error implements the error interface
func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// Validator accumulates validation errors and can produce a ValidationError when invalid.
type Validator struct {
	errors []Error
}

// ValidationError bundles multiple validation errors into a single error value.
type ValidationError struct {
	errors []Error
}

// New creates a new validator
func New() *Validator {
	return &Validator{}
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string, value any) {
	v.errors = append(v.errors, Error{Field: field, Value: value, Message: message})
}

// IsValid returns true if no errors have been accumulated
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Errors returns all accumulated validation errors
func (v *Validator) Errors() []Error {
	return v.errors
}

// Err converts the accumulated validation errors into an error value.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}
	copied := make([]Error, len(v.errors))
	copy(copied, v.errors)
	return ValidationError{errors: copied}
}

// Errors returns the individual validation errors making up the validation failure.
func (e ValidationError) Errors() []Error {
	return e.errors
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	if len(e.errors) == 1 {
		return e.errors[0].Error()
	}
	msgs := make([]string, len(e.errors))
	for i, err := range e.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// HTTPURL validates a direct http(s) URL without credentials or fragment.
func (v *Validator) HTTPURL(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "URL cannot be empty", value)
		return
	}
	if _, ok := platformnet.ParseDirectHTTPURL(value); !ok {
		v.AddError(field, "must be an http or https URL with a host and no credentials", platformnet.SanitizeURL(value))
	}
}

// ListenAddr validates a host:port listen address. The host may be empty.
func (v *Validator) ListenAddr(field, addr string) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid listen address: %v", err), addr)
		return
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		v.AddError(field, fmt.Sprintf("invalid port %q", port), addr)
	}
}

// Range validates that an integer is within a specified range (inclusive)
func (v *Validator) Range(field string, value, minVal, maxVal int) {
	if value < minVal || value > maxVal {
		v.AddError(field, fmt.Sprintf("value must be between %d and %d, got %d", minVal, maxVal, value), value)
	}
}

// DurationRange validates that d is within [minVal, maxVal].
func (v *Validator) DurationRange(field string, d, minVal, maxVal time.Duration) {
	if d < minVal || d > maxVal {
		v.AddError(field, fmt.Sprintf("duration must be between %s and %s, got %s", minVal, maxVal, d), d)
	}
}

// FloatRange validates that f is within [minVal, maxVal].
func (v *Validator) FloatRange(field string, f, minVal, maxVal float64) {
	if f < minVal || f > maxVal {
		v.AddError(field, fmt.Sprintf("value must be between %g and %g, got %g", minVal, maxVal, f), f)
	}
}

// NotEmpty validates that a string is not empty or whitespace-only
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "value cannot be empty", value)
	}
}

// OneOf validates that a value is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.AddError(field, fmt.Sprintf("value must be one of %v, got %q", allowed, value), value)
}

// Positive validates that a number is positive (> 0)
func (v *Validator) Positive(field string, value int) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("value must be positive, got %d", value), value)
	}
}

// NonNegative validates that a number is non-negative (>= 0)
func (v *Validator) NonNegative(field string, value int) {
	if value < 0 {
		v.AddError(field, fmt.Sprintf("value cannot be negative, got %d", value), value)
	}
}

// Custom allows custom validation logic
func (v *Validator) Custom(field string, value any, validator func(any) error) {
	if err := validator(value); err != nil {
		v.AddError(field, err.Error(), value)
	}
}

// Origins validates CORS origins ("scheme://host[:port]" or "*").
func (v *Validator) Origins(field string, origins []string) {
	for _, o := range origins {
		if _, err := platformnet.NormalizeOrigin(o); err != nil {
			v.AddError(field, err.Error(), o)
		}
	}
}

// CIDRList validates CIDR or IP entries and rejects trust-all networks.
func (v *Validator) CIDRList(field string, entries []string) {
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if ip, ipnet, err := net.ParseCIDR(entry); err == nil {
			ones, _ := ipnet.Mask.Size()
			switch {
			case ones == 0:
				v.AddError(field, fmt.Sprintf("forbidden CIDR %q (trust-all is not allowed)", entry), entry)
			case ip.IsUnspecified():
				v.AddError(field, fmt.Sprintf("unspecified address %q is not allowed", entry), entry)
			}
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			v.AddError(field, fmt.Sprintf("invalid entry %q (must be CIDR or IP)", entry), entry)
			continue
		}
		if ip.IsUnspecified() {
			v.AddError(field, fmt.Sprintf("unspecified address %q is not allowed", entry), entry)
		}
	}
}

// RelativePath validates a slash-separated path that must stay inside the
// root it is resolved against: non-empty, not absolute, no ".." segment.
// The path is never touched on the local filesystem.
func (v *Validator) RelativePath(field, p string) {
	switch {
	case strings.TrimSpace(p) == "":
		v.AddError(field, "path cannot be empty", p)
	case strings.ContainsRune(p, 0):
		v.AddError(field, "path contains a NUL byte", p)
	case strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) || hasDriveLetter(p):
		v.AddError(field, fmt.Sprintf("must be relative path, got absolute: %s", p), p)
	case hasDotDot(p):
		v.AddError(field, fmt.Sprintf("contains path traversal: %s", p), p)
	case path.Clean(p) == ".":
		v.AddError(field, "path must name an entry", p)
	}
}

func hasDotDot(p string) bool {
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

func hasDriveLetter(p string) bool {
	return len(p) >= 2 && p[1] == ':' &&
		((p[0] >= 'a' && p[0] <= 'z') || (p[0] >= 'A' && p[0] <= 'Z'))
}
