// Package table holds the in-memory tabular model shared by the audit,
// remediation, validation, and export stages.
package table

import (
	"math"
	"strconv"
)

// Kind identifies what a Value holds.
type Kind uint8

const (
	KindMissing Kind = iota
	KindNumber
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "missing"
	}
}

// Value is a single cell: a number, a string, or missing.
// The zero Value is missing.
type Value struct {
	kind Kind
	num  float64
	str  string
}

// Missing returns the missing value.
func Missing() Value { return Value{} }

// Number returns a numeric value. NaN is stored as missing.
func Number(f float64) Value {
	if math.IsNaN(f) {
		return Value{}
	}
	return Value{kind: KindNumber, num: f}
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Kind reports what the value holds.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether the value is missing.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Float returns the numeric payload and whether the value is a number.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Str returns the string payload and whether the value is a string.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Text renders the value as text. Numbers use their shortest decimal
// form and missing renders as "".
func (v Value) Text() string {
	switch v.kind {
	case KindNumber:
		return FormatNumber(v.num)
	case KindString:
		return v.str
	default:
		return ""
	}
}

// Equal reports whether two values are identical. Missing equals missing.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	default:
		return true
	}
}

// FormatNumber renders f in its shortest round-tripping decimal form.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseNumber parses s as a float. Surrounding spaces are ignored and
// NaN/Inf spellings are rejected.
func ParseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(trimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

func (v Value) appendKey(b []byte) []byte {
	b = append(b, byte('0'+v.kind))
	switch v.kind {
	case KindNumber:
		b = strconv.AppendFloat(b, v.num, 'g', -1, 64)
	case KindString:
		b = strconv.AppendInt(b, int64(len(v.str)), 10)
		b = append(b, ':')
		b = append(b, v.str...)
	}
	return append(b, ';')
}
