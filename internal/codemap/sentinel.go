package codemap

import (
	"sort"

	"github.com/sells-group/readmit-dqi/internal/table"
)

// DefaultSentinelValues are the strings the extract uses in place of a null.
var DefaultSentinelValues = []string{
	"?",
	"Unknown",
	"unknown",
	"UNKNOWN",
	"Not Available",
	"NULL",
	"Not Mapped",
	"Unknown/Invalid",
}

// SentinelSet is an immutable set of strings that mean "missing".
// Matching is exact.
type SentinelSet struct {
	values map[string]struct{}
}

// NewSentinelSet builds a SentinelSet from values.
func NewSentinelSet(values ...string) SentinelSet {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return SentinelSet{values: m}
}

// DefaultSentinels returns the set built from DefaultSentinelValues.
func DefaultSentinels() SentinelSet {
	return NewSentinelSet(DefaultSentinelValues...)
}

// Contains reports whether s is a sentinel.
func (s SentinelSet) Contains(v string) bool {
	_, ok := s.values[v]
	return ok
}

// IsSentinel reports whether a cell is a sentinel string. Numbers and
// missing cells never are.
func (s SentinelSet) IsSentinel(v table.Value) bool {
	str, ok := v.Str()
	return ok && s.Contains(str)
}

// Values returns the sentinels in sorted order.
func (s SentinelSet) Values() []string {
	out := make([]string, 0, len(s.values))
	for v := range s.values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of sentinels.
func (s SentinelSet) Len() int { return len(s.values) }
