// Package codemap holds the static lookup data used to interpret the
// readmissions extract: the categorical ID code descriptions and the set of
// strings that encode a missing value.
package codemap

import (
	"math"
	"sort"

	"github.com/sells-group/readmit-dqi/internal/table"
)

// Unknown is the description returned for missing or unmapped codes.
const Unknown = "Unknown"

// CodeMap maps integer codes of one categorical field to descriptions.
// It is immutable once built.
type CodeMap struct {
	field string
	desc  map[int]string
}

// NewCodeMap builds a CodeMap for field from entries. The entries are copied.
func NewCodeMap(field string, entries map[int]string) *CodeMap {
	desc := make(map[int]string, len(entries))
	for k, v := range entries {
		desc[k] = v
	}
	return &CodeMap{field: field, desc: desc}
}

// Field returns the ID column the map describes.
func (m *CodeMap) Field() string { return m.field }

// Len returns the number of mapped codes.
func (m *CodeMap) Len() int { return len(m.desc) }

// Codes returns the mapped codes in ascending order.
func (m *CodeMap) Codes() []int {
	codes := make([]int, 0, len(m.desc))
	for k := range m.desc {
		codes = append(codes, k)
	}
	sort.Ints(codes)
	return codes
}

// Lookup returns the description for code, or Unknown when code is not
// an integer or is unmapped.
func (m *CodeMap) Lookup(code float64) string {
	if math.IsNaN(code) || math.IsInf(code, 0) || code != math.Trunc(code) {
		return Unknown
	}
	if d, ok := m.desc[int(code)]; ok {
		return d
	}
	return Unknown
}

// LookupValue resolves a table cell. Only numeric cells can match.
func (m *CodeMap) LookupValue(v table.Value) string {
	f, ok := v.Float()
	if !ok {
		return Unknown
	}
	return m.Lookup(f)
}

// Binding ties a CodeMap to the ID column it reads and the description
// column it produces.
type Binding struct {
	IDColumn   string
	DescColumn string
	Map        *CodeMap
}

// Maps is the ordered set of code map bindings applied during cleaning.
type Maps struct {
	bindings []Binding
}

// NewMaps builds a Maps from bindings in the given order.
func NewMaps(bindings ...Binding) *Maps {
	b := make([]Binding, len(bindings))
	copy(b, bindings)
	return &Maps{bindings: b}
}

// Default returns the built-in maps for admission type, discharge
// disposition, and admission source.
func Default() *Maps {
	return NewMaps(
		Binding{IDColumn: "admission_type_id", DescColumn: "admission_type_desc", Map: NewCodeMap("admission_type_id", admissionType)},
		Binding{IDColumn: "discharge_disposition_id", DescColumn: "discharge_disposition_desc", Map: NewCodeMap("discharge_disposition_id", dischargeDisposition)},
		Binding{IDColumn: "admission_source_id", DescColumn: "admission_source_desc", Map: NewCodeMap("admission_source_id", admissionSource)},
	)
}

// Bindings returns a copy of the bindings in order.
func (m *Maps) Bindings() []Binding {
	out := make([]Binding, len(m.bindings))
	copy(out, m.bindings)
	return out
}

// IDColumns returns the ID column names in order.
func (m *Maps) IDColumns() []string {
	out := make([]string, len(m.bindings))
	for i, b := range m.bindings {
		out[i] = b.IDColumn
	}
	return out
}

// DescColumn returns the description column derived from idColumn.
func (m *Maps) DescColumn(idColumn string) (string, bool) {
	for _, b := range m.bindings {
		if b.IDColumn == idColumn {
			return b.DescColumn, true
		}
	}
	return "", false
}
