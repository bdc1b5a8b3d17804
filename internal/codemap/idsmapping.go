package codemap

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ParseIDsMapping reads the stacked code tables shipped with the
// readmissions extract as IDs_mapping.csv. Each block starts with a
// "<field>,description" header and ends at a blank separator line; the
// description column for a field is its name with "_id" replaced by "_desc".
func ParseIDsMapping(r io.Reader) (*Maps, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var (
		bindings []Binding
		field    string
		entries  map[int]string
	)
	flush := func() {
		if field != "" {
			bindings = append(bindings, Binding{
				IDColumn:   field,
				DescColumn: descColumnFor(field),
				Map:        NewCodeMap(field, entries),
			})
		}
		field, entries = "", nil
	}

	line := 0
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "codemap: read ids mapping")
		}
		line++

		key := strings.TrimSpace(rec[0])
		desc := ""
		if len(rec) > 1 {
			desc = strings.TrimSpace(strings.Join(rec[1:], ","))
		}

		if key == "" && desc == "" {
			flush()
			continue
		}
		if strings.EqualFold(desc, "description") {
			flush()
			field = key
			entries = make(map[int]string)
			continue
		}
		if field == "" {
			return nil, eris.Errorf("codemap: line %d: code row outside a block", line)
		}
		code, err := strconv.Atoi(key)
		if err != nil {
			return nil, eris.Wrapf(err, "codemap: line %d: invalid code %q", line, key)
		}
		entries[code] = desc
	}
	flush()

	if len(bindings) == 0 {
		return nil, eris.New("codemap: ids mapping has no blocks")
	}
	return NewMaps(bindings...), nil
}

func descColumnFor(idColumn string) string {
	return strings.TrimSuffix(idColumn, "_id") + "_desc"
}
