package pushdown

import (
	"errors"

	"github.com/hugr-lab/warehouse-go/filter"
)

// ErrInvariantViolation indicates internal state no longer matches what was
// accepted earlier, e.g. a non-deterministic encoder or concurrent use of an
// Accumulator. It is fatal for the current query build and never retried.
var ErrInvariantViolation = errors.New("pushdown invariant violation")

// UnsupportedPredicateError reports a filter that was expressible when
// proposed but could not be translated at synthesis time.
type UnsupportedPredicateError struct {
	Filter filter.Filter
	SetKey string
}

func (e *UnsupportedPredicateError) Error() string {
	return "accepted filter no longer translatable: " + e.Filter.Key()
}

// Unwrap makes the error match ErrInvariantViolation.
func (e *UnsupportedPredicateError) Unwrap() error {
	return ErrInvariantViolation
}
