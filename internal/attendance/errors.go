package attendance

import "errors"

var (
	// ErrNotFound is returned when a referenced session, student or course is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by the store when a unique constraint rejects a write.
	ErrConflict = errors.New("conflict")
)

// FieldError is a problem with a single input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError reports malformed input. It is recovered per item and never aborts a batch.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err *ValidationError) Error() string {
	if err.Err == nil {
		return "validation failed"
	}
	return err.Err.Error()
}

func (err *ValidationError) Unwrap() error { return err.Err }
