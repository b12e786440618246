package validation

import (
	"strings"
)

// ValidateNonEmpty validates that a string is not empty
func ValidateNonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{Field: field, Reason: "cannot be empty"}
	}
	return nil
}
