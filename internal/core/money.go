// Package core provides value normalizers and the shared report model.
//
// This file contains the locale-aware number parser used for every monetary
// and quantity field read from the record store.
package core

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var leadingFloat = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

// ParseLocaleNumber converts a Brazilian-formatted amount into a float64.
//
// Numbers pass through unchanged. Strings have whitespace, the currency
// marker (R$) and non-breaking spaces removed, every "." dropped as a thousands
// separator and the first "," turned into the decimal point. The longest
// numeric prefix is then parsed. Anything else yields 0, never an error.
//
// Examples:
//
//	ParseLocaleNumber("R$ 1.234,56") -> 1234.56
//	ParseLocaleNumber("50")          -> 50
//	ParseLocaleNumber(12.5)          -> 12.5
//	ParseLocaleNumber("abc")         -> 0
func ParseLocaleNumber(v any) float64 {
	switch n := v.(type) {
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return finite(f)
	case string:
		return parseLocaleString(n)
	default:
		return 0
	}
}

func parseLocaleString(s string) float64 {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == 'R' || r == '$' || r == '\u00a0' {
			return -1
		}
		return r
	}, s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)

	m := leadingFloat.FindString(s)
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return finite(f)
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
