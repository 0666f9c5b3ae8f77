package knowledge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/project-kaizen/kaizen/internal/scopegraph"
)

// Error taxonomy. Every error returned by Store wraps exactly one of these,
// so callers can branch with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrInvalidFormat        = errors.New("invalid format")
	ErrReserved             = errors.New("reserved")
	ErrCircularReference    = errors.New("circular reference")
	ErrCrossNamespaceMove   = errors.New("cannot move scope to a different namespace")
	ErrEmptySuppressionList = errors.New("suppression list is empty")
)

// Refinements that still match their parent kind under errors.Is.
var (
	ErrNamespaceNotFound     = &kindError{msg: "namespace not found", kind: ErrNotFound}
	ErrScopeNotFound         = &kindError{msg: "scope not found", kind: ErrNotFound}
	ErrParentNotFound        = &kindError{msg: "parent scope not found", kind: ErrNotFound}
	ErrDefaultScopeProtected = &kindError{msg: "default scope is protected", kind: ErrReserved}
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// invalid wraps a validation failure as ErrInvalidFormat.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidFormat, fmt.Sprintf(format, args...))
}

// fromMalformed maps a scopegraph parse error onto the store taxonomy.
func fromMalformed(err error) error {
	if errors.Is(err, scopegraph.ErrMalformed) {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return err
}

// missing builds one aggregated error naming every absent identifier.
func missing(kind error, what string, ids []string) error {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	return fmt.Errorf("%s %s: %w", what, strings.Join(quoted, ", "), kind)
}
