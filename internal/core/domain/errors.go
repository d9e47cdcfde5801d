package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInput       = errors.New("input error")
	ErrExternalAPI = errors.New("external api error")
	ErrParse       = errors.New("parse error")
	ErrValidation  = errors.New("validation error")
	ErrCache       = errors.New("cache error")
	ErrNotFound    = errors.New("not found")
	ErrTemporary   = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorCategory maps an error onto the monitor's error taxonomy. Unknown
// errors count as external failures so the operator dashboard never loses them.
func ErrorCategory(err error) string {
	switch {
	case err == nil:
		return ""
	case IsKind(err, ErrInput):
		return "input_error"
	case IsKind(err, ErrParse):
		return "parse_error"
	case IsKind(err, ErrValidation):
		return "validation_error"
	case IsKind(err, ErrCache):
		return "cache_error"
	case IsKind(err, ErrExternalAPI), IsKind(err, ErrTemporary):
		return "external_api_error"
	default:
		return "external_api_error"
	}
}
