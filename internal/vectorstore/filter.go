package vectorstore

import (
	"fmt"
	"slices"
	"strings"
)

// Filter is an AND of Must clauses, further restricted by Should: when
// Should is non-empty at least one of its clauses must hold.
type Filter struct {
	Must   []Condition `json:"must,omitempty"`
	Should []Condition `json:"should,omitempty"`
}

// Condition tests one payload field with exactly one of Match or Range.
type Condition struct {
	Key   string `json:"key"`
	Match *Match `json:"match,omitempty"`
	Range *Range `json:"range,omitempty"`
}

// Match is equality on Value, or membership when Any is set. On the tags
// field both mean "the record carries at least one of these tags".
type Match struct {
	Value any      `json:"value,omitempty"`
	Any   []string `json:"any,omitempty"`
}

type Range struct {
	GT  *float64 `json:"gt,omitempty"`
	GTE *float64 `json:"gte,omitempty"`
	LT  *float64 `json:"lt,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
}

func (r *Range) empty() bool {
	return r == nil || (r.GT == nil && r.GTE == nil && r.LT == nil && r.LTE == nil)
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindStringList
	kindNumber
	kindBool
)

var filterableFields = map[string]fieldKind{
	FieldType:              kindString,
	FieldSource:            kindString,
	FieldPersonaVersion:    kindString,
	FieldTags:              kindStringList,
	FieldMatchedAspects:    kindStringList,
	FieldAlignmentScore:    kindNumber,
	FieldAlignmentBypassed: kindBool,
}

// MustMatch builds an equality clause.
func MustMatch(key string, value any) Condition {
	return Condition{Key: key, Match: &Match{Value: value}}
}

// MatchAny builds a membership clause.
func MatchAny(key string, values ...string) Condition {
	return Condition{Key: key, Match: &Match{Any: values}}
}

// AtLeast builds a range clause key >= min.
func AtLeast(key string, min float64) Condition {
	return Condition{Key: key, Range: &Range{GTE: &min}}
}

// Normalize repairs loosely-shaped filters produced by callers: it trims
// keys, drops clauses with no key or no predicate, folds slice-valued
// matches into Any, and returns nil when nothing is left. Unknown keys are
// kept so that the backend can reject them.
func Normalize(f *Filter) *Filter {
	if f == nil {
		return nil
	}
	out := &Filter{
		Must:   normalizeConditions(f.Must),
		Should: normalizeConditions(f.Should),
	}
	if len(out.Must) == 0 && len(out.Should) == 0 {
		return nil
	}
	return out
}

func normalizeConditions(in []Condition) []Condition {
	out := make([]Condition, 0, len(in))
	for _, c := range in {
		c.Key = strings.TrimSpace(c.Key)
		if c.Key == "" {
			continue
		}
		if c.Range.empty() {
			c.Range = nil
		}
		if c.Match != nil {
			m := normalizeMatch(*c.Match)
			if m == nil {
				c.Match = nil
			} else {
				c.Match = m
			}
		}
		if c.Match == nil && c.Range == nil {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func normalizeMatch(m Match) *Match {
	switch v := m.Value.(type) {
	case []string:
		m.Any = append(m.Any, v...)
		m.Value = nil
	case []any:
		for _, item := range v {
			m.Any = append(m.Any, fmt.Sprint(item))
		}
		m.Value = nil
	case string:
		if strings.TrimSpace(v) == "" && len(m.Any) == 0 {
			return nil
		}
	}
	cleaned := m.Any[:0:0]
	for _, item := range m.Any {
		if item = strings.TrimSpace(item); item != "" && !slices.Contains(cleaned, item) {
			cleaned = append(cleaned, item)
		}
	}
	m.Any = cleaned
	if len(m.Any) == 0 {
		m.Any = nil
	}
	if m.Value == nil && m.Any == nil {
		return nil
	}
	return &m
}

// Validate rejects clauses the backends cannot evaluate.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	for _, c := range append(append([]Condition(nil), f.Must...), f.Should...) {
		if err := c.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c Condition) validate() error {
	kind, ok := filterableFields[c.Key]
	if !ok {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, c.Key)
	}
	if (c.Match == nil) == (c.Range == nil) {
		return fmt.Errorf("%w: field %q needs exactly one of match or range", ErrInvalidFilter, c.Key)
	}
	if c.Range != nil {
		if kind != kindNumber {
			return fmt.Errorf("%w: range on non-numeric field %q", ErrInvalidFilter, c.Key)
		}
		return nil
	}
	if c.Match.Value != nil && c.Match.Any != nil {
		return fmt.Errorf("%w: field %q has both value and any", ErrInvalidFilter, c.Key)
	}
	switch kind {
	case kindNumber:
		return fmt.Errorf("%w: match on numeric field %q", ErrInvalidFilter, c.Key)
	case kindBool:
		if _, ok := c.Match.Value.(bool); !ok {
			return fmt.Errorf("%w: field %q expects a boolean value", ErrInvalidFilter, c.Key)
		}
	default:
		if c.Match.Value != nil {
			if _, ok := c.Match.Value.(string); !ok {
				return fmt.Errorf("%w: field %q expects a string value", ErrInvalidFilter, c.Key)
			}
		}
	}
	return nil
}

// Matches evaluates a validated filter against a payload.
func (f *Filter) Matches(p Payload) bool {
	if f == nil {
		return true
	}
	for _, c := range f.Must {
		if !c.matches(p) {
			return false
		}
	}
	if len(f.Should) == 0 {
		return true
	}
	for _, c := range f.Should {
		if c.matches(p) {
			return true
		}
	}
	return false
}

func (c Condition) matches(p Payload) bool {
	switch c.Key {
	case FieldAlignmentScore:
		return c.Range.contains(p.AlignmentScore)
	case FieldAlignmentBypassed:
		want, _ := c.Match.Value.(bool)
		return p.AlignmentBypassed == want
	case FieldTags:
		return c.Match.intersects(p.Tags)
	case FieldMatchedAspects:
		return c.Match.intersects(p.MatchedAspects)
	case FieldType:
		return c.Match.equals(p.Type)
	case FieldSource:
		return c.Match.equals(p.Source)
	case FieldPersonaVersion:
		return c.Match.equals(p.PersonaVersion)
	}
	return false
}

func (r *Range) contains(v float64) bool {
	if r.GT != nil && !(v > *r.GT) {
		return false
	}
	if r.GTE != nil && !(v >= *r.GTE) {
		return false
	}
	if r.LT != nil && !(v < *r.LT) {
		return false
	}
	if r.LTE != nil && !(v <= *r.LTE) {
		return false
	}
	return true
}

func (m *Match) values() []string {
	if m.Any != nil {
		return m.Any
	}
	if s, ok := m.Value.(string); ok {
		return []string{s}
	}
	return nil
}

func (m *Match) equals(field string) bool {
	return slices.Contains(m.values(), field)
}

func (m *Match) intersects(field []string) bool {
	for _, want := range m.values() {
		if slices.Contains(field, want) {
			return true
		}
	}
	return false
}
