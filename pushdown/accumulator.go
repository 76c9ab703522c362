package pushdown

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/hugr-lab/warehouse-go/filter"
)

// Phase is the position of an Accumulator within a planning cycle.
type Phase int

const (
	// PhaseIdle means no expressible filter was proposed since the last synthesis.
	PhaseIdle Phase = iota
	// PhaseFiltersPending means the current cycle proposed at least one
	// expressible filter.
	PhaseFiltersPending
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFiltersPending:
		return "filters_pending"
	default:
		return "unknown"
	}
}

// FilterSet is the conjunction of expressible filters one consumer pushed
// in one call. It is immutable once built.
type FilterSet struct {
	key     string
	filters []filter.Filter
}

// newFilterSet dedupes filters by key, keeping first-seen order.
func newFilterSet(filters []filter.Filter) FilterSet {
	seen := make(map[string]struct{}, len(filters))
	kept := make([]filter.Filter, 0, len(filters))
	for _, f := range filters {
		k := f.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, f)
	}

	// The identity of a set does not depend on member order.
	keys := filter.Keys(kept)
	sort.Strings(keys)

	return FilterSet{
		key:     strings.Join(keys, "\x00"),
		filters: kept,
	}
}

// Filters returns a copy of the set members.
func (s FilterSet) Filters() []filter.Filter {
	out := make([]filter.Filter, len(s.filters))
	copy(out, s.filters)
	return out
}

// Len returns the number of distinct filters in the set.
func (s FilterSet) Len() int { return len(s.filters) }

// Key returns the order-independent identity of the set.
func (s FilterSet) Key() string { return s.key }

// Accumulator records every distinct set of expressible filters pushed to
// one physical scan, across all consumers and planning cycles.
//
// The set of FilterSets only grows; it is reset by creating a new
// Accumulator. An Accumulator is not safe for concurrent use: the host
// planner must drive one instance from one goroutine at a time.
type Accumulator struct {
	encoder filter.Encoder
	logger  *slog.Logger

	sets  []FilterSet
	index map[string]struct{}
	phase Phase
}

// NewAccumulator creates an empty accumulator translating with encoder.
// If logger is nil, slog.Default() is used.
func NewAccumulator(encoder filter.Encoder, logger *slog.Logger) *Accumulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accumulator{
		encoder: encoder,
		logger:  logger,
		index:   make(map[string]struct{}),
		phase:   PhaseIdle,
	}
}

// Propose records the expressible subset of filters as one FilterSet and
// returns the filters the caller must still apply itself.
//
// Every input filter is returned, in input order: sets from different
// consumers are OR-combined at synthesis, so no pushed filter is enough on
// its own to exclude a row.
func (a *Accumulator) Propose(filters []filter.Filter, schema *arrow.Schema) []filter.Filter {
	notHandled := make([]filter.Filter, len(filters))
	copy(notHandled, filters)
	if len(filters) == 0 {
		return notHandled
	}

	expressible := make([]filter.Filter, 0, len(filters))
	for _, f := range filters {
		if _, ok := a.encoder.Encode(schema, f); ok {
			expressible = append(expressible, f)
		}
	}

	if len(expressible) > 0 {
		set := newFilterSet(expressible)
		added := a.add(set)
		a.phase = PhaseFiltersPending
		a.logger.Debug("Filters proposed",
			"filters", filter.Keys(filters),
			"expressible", set.Len(),
			"new_set", added,
			"sets", len(a.sets),
		)
	} else {
		a.logger.Debug("No expressible filters proposed",
			"filters", filter.Keys(filters),
			"phase", a.phase.String(),
		)
	}

	return notHandled
}

// add stores set unless an identical one is already present.
func (a *Accumulator) add(set FilterSet) bool {
	if _, ok := a.index[set.key]; ok {
		return false
	}
	a.index[set.key] = struct{}{}
	a.sets = append(a.sets, set)
	return true
}

// Sets returns the accumulated filter sets in insertion order.
func (a *Accumulator) Sets() []FilterSet {
	out := make([]FilterSet, len(a.sets))
	copy(out, a.sets)
	return out
}

// Len returns the number of accumulated filter sets.
func (a *Accumulator) Len() int { return len(a.sets) }

// Phase returns the current cycle phase.
func (a *Accumulator) Phase() Phase { return a.phase }

// endCycle returns the phase the cycle ended in and moves back to idle.
func (a *Accumulator) endCycle() Phase {
	p := a.phase
	a.phase = PhaseIdle
	return p
}
