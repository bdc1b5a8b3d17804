package audit

import (
	"sort"

	"github.com/sells-group/readmit-dqi/internal/table"
)

// Column names the profile and the consistency checklist read.
const (
	ColPatient        = "patient_nbr"
	ColEncounter      = "encounter_id"
	ColGender         = "gender"
	ColRace           = "race"
	ColAge            = "age"
	ColWeight         = "weight"
	ColTimeInHospital = "time_in_hospital"
	ColReadmitted     = "readmitted"
)

// ValueCount is one bucket of a distribution. Percent is the share of
// all rows, in [0,100].
type ValueCount struct {
	Value   string  `json:"value" yaml:"value"`
	Count   int     `json:"count" yaml:"count"`
	Percent float64 `json:"percent" yaml:"percent"`
	Missing bool    `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// ClinicalProfile is a read-only snapshot of the cleaned table.
type ClinicalProfile struct {
	Rows               int          `json:"rows" yaml:"rows"`
	Patients           int          `json:"patients" yaml:"patients"`
	Gender             []ValueCount `json:"gender" yaml:"gender"`
	Race               []ValueCount `json:"race" yaml:"race"`
	Age                []ValueCount `json:"age" yaml:"age"`
	MeanTimeInHospital *float64     `json:"mean_time_in_hospital" yaml:"mean_time_in_hospital"`
	AdmissionType      []ValueCount `json:"admission_type" yaml:"admission_type"`
	AdmissionSource    []ValueCount `json:"admission_source" yaml:"admission_source"`
	Discharge          []ValueCount `json:"discharge" yaml:"discharge"`
	Readmitted         []ValueCount `json:"readmitted" yaml:"readmitted"`
}

// Profile summarizes t. Absent columns give empty distributions and a
// nil mean.
func (a *Auditor) Profile(t *table.Table) ClinicalProfile {
	p := ClinicalProfile{
		Rows:               t.NumRows(),
		Patients:           distinct(t, ColPatient),
		Gender:             distribution(t, ColGender, true),
		Race:               distribution(t, ColRace, true),
		Age:                distribution(t, ColAge, true),
		MeanTimeInHospital: mean(t, ColTimeInHospital),
		Readmitted:         distribution(t, ColReadmitted, false),
	}
	for _, b := range a.maps.Bindings() {
		d := distribution(t, b.DescColumn, false)
		switch b.IDColumn {
		case "admission_type_id":
			p.AdmissionType = d
		case "admission_source_id":
			p.AdmissionSource = d
		case "discharge_disposition_id":
			p.Discharge = d
		}
	}
	return p
}

// distinct counts distinct values of a column; missing is one group.
func distinct(t *table.Table, name string) int {
	col, err := t.Column(name)
	if err != nil {
		return 0
	}
	seen := make(map[string]struct{})
	for _, v := range col.Values {
		seen[v.Kind().String()+":"+v.Text()] = struct{}{}
	}
	return len(seen)
}

func mean(t *table.Table, name string) *float64 {
	col, err := t.Column(name)
	if err != nil {
		return nil
	}
	var sum float64
	n := 0
	for _, v := range col.Values {
		if f, ok := v.Float(); ok {
			sum += f
			n++
		}
	}
	if n == 0 {
		return nil
	}
	m := sum / float64(n)
	return &m
}

// distribution counts the values of a column, sorted by count descending
// and then by value. With withMissing the missing cells form their own
// bucket, otherwise they are dropped.
func distribution(t *table.Table, name string, withMissing bool) []ValueCount {
	col, err := t.Column(name)
	if err != nil {
		return []ValueCount{}
	}
	counts := make(map[string]int)
	missing := 0
	for _, v := range col.Values {
		if v.IsMissing() {
			missing++
			continue
		}
		counts[v.Text()]++
	}

	rows := t.NumRows()
	out := make([]ValueCount, 0, len(counts)+1)
	for v, n := range counts {
		out = append(out, ValueCount{Value: v, Count: n, Percent: percent(n, rows)})
	}
	if withMissing && missing > 0 {
		out = append(out, ValueCount{Count: missing, Percent: percent(missing, rows), Missing: true})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Missing != out[j].Missing {
			return !out[i].Missing
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
