package store

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a missing job or worker. Callers test with errors.Is.
var ErrNotFound = errors.New("not found")

// NotFoundf wraps ErrNotFound with entity context.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}
