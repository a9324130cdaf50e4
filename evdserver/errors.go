package evdserver

import (
	"errors"
	"fmt"
)

// ErrInput marks recoverable request errors: the handler answers them with
// a structured error response naming the failing parameter, while all other
// failures surface as a generic internal error.
var ErrInput = errors.New("input error")

func inputErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInput, fmt.Sprintf(format, args...))
}
