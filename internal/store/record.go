package store

import (
	"strconv"
)

// Record is one object as returned by the record store. Values keep their
// decoded JSON shape: strings, float64, bool, nested maps and slices.
type Record map[string]any

// ID returns the record's "_id".
func (r Record) ID() string {
	s, _ := r[FieldID].(string)
	return s
}

// Value returns the first non-nil value among keys.
func (r Record) Value(keys ...string) any {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// Text returns the first non-empty value among keys rendered as a string.
// Empty strings, zero numbers and false are skipped.
func (r Record) Text(keys ...string) string {
	for _, k := range keys {
		if s := textOf(r[k]); s != "" {
			return s
		}
	}
	return ""
}

// Ref is a link to another record, which the store returns either as a
// bare id string or as an embedded object.
type Ref struct {
	ID       string
	Embedded Record
}

// IsZero reports whether the link carries nothing usable.
func (r Ref) IsZero() bool {
	return r.ID == "" && r.Embedded == nil
}

// RefOf interprets v as a link.
func RefOf(v any) Ref {
	switch t := v.(type) {
	case string:
		return Ref{ID: t}
	case map[string]any:
		rec := Record(t)
		return Ref{ID: rec.ID(), Embedded: rec}
	case Record:
		return Ref{ID: t.ID(), Embedded: t}
	default:
		return Ref{}
	}
}

// RefID returns the id of a link or "" when v is neither an id nor an object.
func RefID(v any) string {
	return RefOf(v).ID
}

func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		if t == 0 {
			return ""
		}
		return strconv.Itoa(t)
	case int64:
		if t == 0 {
			return ""
		}
		return strconv.FormatInt(t, 10)
	case bool:
		if !t {
			return ""
		}
		return "true"
	default:
		return ""
	}
}
