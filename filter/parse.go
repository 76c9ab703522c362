package filter

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/paulmach/orb/encoding/wkt"
)

// Parse parses a JSON array of filters.
//
// Each element is an object discriminated by "type":
//
//	{"type": "equals", "attribute": "a", "value": 1, "null_safe": false}
//	{"type": "compare", "attribute": "a", "op": ">", "value": 1}
//	{"type": "in", "attribute": "a", "values": [1, 2]}
//	{"type": "is_null", "attribute": "a"}
//	{"type": "is_not_null", "attribute": "a"}
//	{"type": "string_match", "attribute": "a", "mode": "starts_with", "pattern": "x"}
//	{"type": "and", "children": [...]}  (or "left"/"right")
//	{"type": "or", "children": [...]}
//	{"type": "not", "child": {...}}
//
// Values are JSON scalars; {"base64": "..."} decodes to []byte and
// {"wkt": "POINT (1 2)"} to an orb.Geometry. Unknown types parse to
// Unsupported rather than failing, so the caller can still apply them.
func Parse(data []byte) ([]Filter, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("filter: invalid JSON: %w", err)
	}

	filters := make([]Filter, 0, len(raws))
	for i, raw := range raws {
		f, err := parseFilter(raw)
		if err != nil {
			return nil, fmt.Errorf("filter: error parsing filter %d: %w", i, err)
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// rawFilter is the union of all filter fields, decoded in one pass.
type rawFilter struct {
	Type        string            `json:"type"`
	Attribute   string            `json:"attribute"`
	Op          string            `json:"op"`
	Value       json.RawMessage   `json:"value"`
	Values      []json.RawMessage `json:"values"`
	NullSafe    bool              `json:"null_safe"`
	Mode        string            `json:"mode"`
	Pattern     string            `json:"pattern"`
	Left        json.RawMessage   `json:"left"`
	Right       json.RawMessage   `json:"right"`
	Children    []json.RawMessage `json:"children"`
	Child       json.RawMessage   `json:"child"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
}

func parseFilter(data json.RawMessage) (Filter, error) {
	var raw rawFilter
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}

	switch Kind(raw.Type) {
	case KindEquals:
		if raw.Attribute == "" {
			return nil, fmt.Errorf("equals: missing attribute")
		}
		v, err := parseValue(raw.Value)
		if err != nil {
			return nil, fmt.Errorf("equals: %w", err)
		}
		return Equals{Attribute: raw.Attribute, Value: v, NullSafe: raw.NullSafe}, nil

	case KindCompare:
		if raw.Attribute == "" {
			return nil, fmt.Errorf("compare: missing attribute")
		}
		op := CompareOp(raw.Op)
		switch op {
		case OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual, OpNotEqual:
		case "!=":
			op = OpNotEqual
		default:
			return nil, fmt.Errorf("compare: unknown operator %q", raw.Op)
		}
		v, err := parseValue(raw.Value)
		if err != nil {
			return nil, fmt.Errorf("compare: %w", err)
		}
		return Compare{Attribute: raw.Attribute, Op: op, Value: v}, nil

	case KindIn:
		if raw.Attribute == "" {
			return nil, fmt.Errorf("in: missing attribute")
		}
		values := make([]any, 0, len(raw.Values))
		for i, rv := range raw.Values {
			v, err := parseValue(rv)
			if err != nil {
				return nil, fmt.Errorf("in: value %d: %w", i, err)
			}
			values = append(values, v)
		}
		return In{Attribute: raw.Attribute, Values: values}, nil

	case KindIsNull:
		return IsNull{Attribute: raw.Attribute}, nil

	case KindIsNotNull:
		return IsNotNull{Attribute: raw.Attribute}, nil

	case KindStringMatch:
		mode := MatchMode(raw.Mode)
		switch mode {
		case MatchStartsWith, MatchEndsWith, MatchContains:
		default:
			return nil, fmt.Errorf("string_match: unknown mode %q", raw.Mode)
		}
		return StringMatch{Attribute: raw.Attribute, Mode: mode, Pattern: raw.Pattern}, nil

	case KindAnd, KindOr:
		left, right, err := parseOperands(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", raw.Type, err)
		}
		if Kind(raw.Type) == KindAnd {
			return And{Left: left, Right: right}, nil
		}
		return Or{Left: left, Right: right}, nil

	case KindNot:
		if len(raw.Child) == 0 {
			return nil, fmt.Errorf("not: missing child")
		}
		child, err := parseFilter(raw.Child)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		return Not{Child: child}, nil

	default:
		name := raw.Name
		if name == "" {
			name = raw.Type
		}
		return Unsupported{Name: name, Description: raw.Description}, nil
	}
}

// parseOperands reads left/right, or folds a children list left to right.
func parseOperands(raw rawFilter) (Filter, Filter, error) {
	if len(raw.Children) == 0 {
		if len(raw.Left) == 0 || len(raw.Right) == 0 {
			return nil, nil, fmt.Errorf("missing operands")
		}
		left, err := parseFilter(raw.Left)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid left operand: %w", err)
		}
		right, err := parseFilter(raw.Right)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid right operand: %w", err)
		}
		return left, right, nil
	}

	if len(raw.Children) < 2 {
		return nil, nil, fmt.Errorf("need at least 2 children, got %d", len(raw.Children))
	}
	children := make([]Filter, len(raw.Children))
	for i, c := range raw.Children {
		f, err := parseFilter(c)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid child %d: %w", i, err)
		}
		children[i] = f
	}

	left := children[0]
	for _, c := range children[1 : len(children)-1] {
		if Kind(raw.Type) == KindAnd {
			left = And{Left: left, Right: c}
		} else {
			left = Or{Left: left, Right: c}
		}
	}
	return left, children[len(children)-1], nil
}

// rawObjectValue holds the tagged non-scalar value forms.
type rawObjectValue struct {
	Base64 *string `json:"base64"`
	WKT    *string `json:"wkt"`
}

// parseValue decodes a literal. Integral numbers become int64, other
// numbers float64.
func parseValue(data json.RawMessage) (any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	switch data[0] {
	case '{':
		var obj rawObjectValue
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("invalid value: %w", err)
		}
		switch {
		case obj.Base64 != nil:
			b, err := base64.StdEncoding.DecodeString(*obj.Base64)
			if err != nil {
				return nil, fmt.Errorf("invalid base64 value: %w", err)
			}
			return b, nil
		case obj.WKT != nil:
			g, err := wkt.Unmarshal(*obj.WKT)
			if err != nil {
				return nil, fmt.Errorf("invalid wkt value: %w", err)
			}
			return g, nil
		default:
			return nil, fmt.Errorf("unknown value object %s", string(data))
		}
	case '[':
		return nil, fmt.Errorf("list values are not supported")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}

	if n, ok := v.(json.Number); ok {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return i, nil
		}
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u, nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %s: %w", n, err)
		}
		return f, nil
	}
	return v, nil
}
