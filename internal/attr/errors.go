package attr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidKind    = errors.New("invalid attribute type")
	ErrInvalidNumber  = errors.New("invalid number")
	ErrInvalidBoolean = errors.New("invalid boolean")
	ErrNestingTooDeep = errors.New("object nesting too deep")
)

// FieldError ties a value error to the key that produced it. For object
// rows the key is the nested field name.
type FieldError struct {
	Key string
	Err error
}

func (e *FieldError) Error() string {
	if e.Key == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v for %q", e.Err, e.Key)
}

func (e *FieldError) Unwrap() error { return e.Err }
