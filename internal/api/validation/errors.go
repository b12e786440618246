package validation

import "fmt"

// ValidationError reports a rejected request field. Err, when set, is the
// underlying cause and stays reachable through errors.Is and errors.As.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

// Wrap attributes err to field
func Wrap(field string, err error) ValidationError {
	return ValidationError{Field: field, Err: err}
}

func (e ValidationError) Error() string {
	reason := e.Reason
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, reason)
}

func (e ValidationError) Unwrap() error {
	return e.Err
}
