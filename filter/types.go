package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// Kind identifies the variant of a Filter.
type Kind string

const (
	KindEquals      Kind = "equals"
	KindCompare     Kind = "compare"
	KindIn          Kind = "in"
	KindIsNull      Kind = "is_null"
	KindIsNotNull   Kind = "is_not_null"
	KindStringMatch Kind = "string_match"
	KindAnd         Kind = "and"
	KindOr          Kind = "or"
	KindNot         Kind = "not"
	KindUnsupported Kind = "unsupported"
)

// CompareOp is the operator of a Compare filter.
type CompareOp string

const (
	OpLessThan           CompareOp = "<"
	OpLessThanOrEqual    CompareOp = "<="
	OpGreaterThan        CompareOp = ">"
	OpGreaterThanOrEqual CompareOp = ">="
	OpNotEqual           CompareOp = "<>"
)

// MatchMode selects the pattern position of a StringMatch filter.
type MatchMode string

const (
	MatchStartsWith MatchMode = "starts_with"
	MatchEndsWith   MatchMode = "ends_with"
	MatchContains   MatchMode = "contains"
)

// Filter is a predicate proposed for pushdown.
// The set of implementations is closed; use a type switch to inspect one.
//
// Two filters are the same filter when their keys are equal. Key is stable
// across processes and does not depend on pointer identity.
type Filter interface {
	// Kind returns the filter variant.
	Kind() Kind

	// Key returns the canonical identity of the filter.
	Key() string

	filterMarker()
}

// Equals matches rows where Attribute equals Value.
// With NullSafe set, NULL equals NULL (the <=> operator).
type Equals struct {
	Attribute string
	Value     any
	NullSafe  bool
}

// Compare matches rows where Attribute Op Value holds.
type Compare struct {
	Attribute string
	Op        CompareOp
	Value     any
}

// In matches rows where Attribute is one of Values.
type In struct {
	Attribute string
	Values    []any
}

// IsNull matches rows where Attribute is NULL.
type IsNull struct {
	Attribute string
}

// IsNotNull matches rows where Attribute is not NULL.
type IsNotNull struct {
	Attribute string
}

// StringMatch matches string columns against a literal prefix, suffix or substring.
type StringMatch struct {
	Attribute string
	Mode      MatchMode
	Pattern   string
}

// And is the conjunction of two filters.
type And struct {
	Left  Filter
	Right Filter
}

// Or is the disjunction of two filters.
type Or struct {
	Left  Filter
	Right Filter
}

// Not negates a filter.
type Not struct {
	Child Filter
}

// Unsupported stands for a predicate the planner could not describe with
// the other variants (user-defined functions, subqueries...). It is never
// expressible.
type Unsupported struct {
	Name        string
	Description string
}

func (Equals) Kind() Kind      { return KindEquals }
func (Compare) Kind() Kind     { return KindCompare }
func (In) Kind() Kind          { return KindIn }
func (IsNull) Kind() Kind      { return KindIsNull }
func (IsNotNull) Kind() Kind   { return KindIsNotNull }
func (StringMatch) Kind() Kind { return KindStringMatch }
func (And) Kind() Kind         { return KindAnd }
func (Or) Kind() Kind          { return KindOr }
func (Not) Kind() Kind         { return KindNot }
func (Unsupported) Kind() Kind { return KindUnsupported }

func (Equals) filterMarker()      {}
func (Compare) filterMarker()     {}
func (In) filterMarker()          {}
func (IsNull) filterMarker()      {}
func (IsNotNull) filterMarker()   {}
func (StringMatch) filterMarker() {}
func (And) filterMarker()         {}
func (Or) filterMarker()          {}
func (Not) filterMarker()         {}
func (Unsupported) filterMarker() {}

func (f Equals) Key() string {
	if f.NullSafe {
		return "EqualNullSafe(" + f.Attribute + "," + valueKey(f.Value) + ")"
	}
	return "EqualTo(" + f.Attribute + "," + valueKey(f.Value) + ")"
}

func (f Compare) Key() string {
	return "Compare(" + f.Attribute + "," + string(f.Op) + "," + valueKey(f.Value) + ")"
}

func (f In) Key() string {
	keys := make([]string, len(f.Values))
	for i, v := range f.Values {
		keys[i] = valueKey(v)
	}
	return "In(" + f.Attribute + ",[" + strings.Join(keys, ",") + "])"
}

func (f IsNull) Key() string    { return "IsNull(" + f.Attribute + ")" }
func (f IsNotNull) Key() string { return "IsNotNull(" + f.Attribute + ")" }

func (f StringMatch) Key() string {
	return "StringMatch(" + f.Attribute + "," + string(f.Mode) + "," + valueKey(f.Pattern) + ")"
}

func (f And) Key() string { return "And(" + childKey(f.Left) + "," + childKey(f.Right) + ")" }
func (f Or) Key() string  { return "Or(" + childKey(f.Left) + "," + childKey(f.Right) + ")" }
func (f Not) Key() string { return "Not(" + childKey(f.Child) + ")" }

func (f Unsupported) Key() string {
	return "Unsupported(" + f.Name + "," + valueKey(f.Description) + ")"
}

func (f Equals) String() string      { return f.Key() }
func (f Compare) String() string     { return f.Key() }
func (f In) String() string          { return f.Key() }
func (f IsNull) String() string      { return f.Key() }
func (f IsNotNull) String() string   { return f.Key() }
func (f StringMatch) String() string { return f.Key() }
func (f And) String() string         { return f.Key() }
func (f Or) String() string          { return f.Key() }
func (f Not) String() string         { return f.Key() }
func (f Unsupported) String() string { return f.Key() }

func childKey(f Filter) string {
	if f == nil {
		return "nil"
	}
	return f.Key()
}

// valueKey renders a literal with its Go type so that 5 and "5" stay distinct.
func valueKey(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("string:%q", x)
	case []byte:
		return fmt.Sprintf("bytes:%x", x)
	case time.Time:
		return "time:" + x.UTC().Format(time.RFC3339Nano)
	case orb.Geometry:
		return "geometry:" + wkt.MarshalString(x)
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

// Keys returns the canonical keys of filters, in order.
func Keys(filters []Filter) []string {
	keys := make([]string, len(filters))
	for i, f := range filters {
		keys[i] = childKey(f)
	}
	return keys
}
