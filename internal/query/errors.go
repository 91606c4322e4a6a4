package query

import (
	"errors"
	"fmt"
	"sort"
)

// ErrValidation is returned for arguments that are rejected before any SQL is issued.
var ErrValidation = errors.New("validation failed")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func sortStrings(s []string) { sort.Strings(s) }
