package core

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var monthNames = map[string]int{
	"1": 1, "01": 1, "jan": 1, "janeiro": 1,
	"2": 2, "02": 2, "fev": 2, "fevereiro": 2,
	"3": 3, "03": 3, "mar": 3, "marco": 3,
	"4": 4, "04": 4, "abr": 4, "abril": 4,
	"5": 5, "05": 5, "mai": 5, "maio": 5,
	"6": 6, "06": 6, "jun": 6, "junho": 6,
	"7": 7, "07": 7, "jul": 7, "julho": 7,
	"8": 8, "08": 8, "ago": 8, "agosto": 8,
	"9": 9, "09": 9, "set": 9, "setembro": 9,
	"10": 10, "out": 10, "outubro": 10,
	"11": 11, "nov": 11, "novembro": 11,
	"12": 12, "dez": 12, "dezembro": 12,
}

var monthYearPattern = regexp.MustCompile(`^\s*([01]?\d)\s*/\s*(\d{4})\s*$`)

// ResolveMonth maps a month field to 1..12.
//
// Accepts numbers, numeric strings ("5", "05") and Portuguese month names or
// abbreviations in any case, with or without accents ("Março", "marco",
// "mar"). Objects are resolved through their "display" or "name" field.
// Anything else, including out of range values, yields 0.
func ResolveMonth(v any) int {
	switch m := v.(type) {
	case string:
		key := Fold(m, true)
		if n, ok := monthNames[key]; ok {
			return n
		}
		f, err := strconv.ParseFloat(key, 64)
		if err != nil {
			return 0
		}
		return monthFromFloat(f)
	case map[string]any:
		if n, ok := monthNames[Fold(displayField(m), true)]; ok {
			return n
		}
		return 0
	default:
		f, ok := numeric(v)
		if !ok {
			return 0
		}
		return monthFromFloat(f)
	}
}

// ResolveYear extracts a year from a number, from the digits of a string
// ("2.024" and "2024" both give 2024) or from the digits of an object's
// "display" or "name" field. Unresolvable input yields 0.
func ResolveYear(v any) int {
	switch y := v.(type) {
	case string:
		return digitsOf(y)
	case map[string]any:
		return digitsOf(displayField(y))
	default:
		f, ok := numeric(v)
		if !ok || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
			return 0
		}
		return int(f)
	}
}

// ParseMonthYear matches a strict "M/YYYY" or "MM/YYYY" string.
//
// Examples:
//
//	ParseMonthYear("03/2024") -> {2024 3}, true
//	ParseMonthYear("13/2024") -> {}, false
func ParseMonthYear(s string) (Period, bool) {
	m := monthYearPattern.FindStringSubmatch(s)
	if m == nil {
		return Period{}, false
	}
	month, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 || year <= 1900 {
		return Period{}, false
	}
	return Period{Year: year, Month: month}, true
}

// SplitMonthYear is the lenient reader for a ledger "Data" field. Each side of
// the "/" is resolved independently so a partially valid value still yields
// whichever component it can.
func SplitMonthYear(s string) Period {
	parts := strings.Split(s, "/")
	p := Period{Month: ResolveMonth(strings.TrimSpace(parts[0]))}
	if len(parts) > 1 {
		p.Year = ResolveYear(parts[1])
	}
	return p
}

func monthFromFloat(f float64) int {
	if f != math.Trunc(f) || f < 1 || f > 12 {
		return 0
	}
	return int(f)
}

func digitsOf(s string) int {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0
	}
	return n
}

func displayField(m map[string]any) string {
	for _, k := range []string{"display", "name"} {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
