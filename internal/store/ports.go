// Package store defines the record store boundary: generic records, filters
// and the fetch contract implemented by the Bubble client and the in-memory
// fixture store.
package store

import (
	"context"
	"fmt"
)

// DefaultPageSize is the page size used when a caller passes zero.
const DefaultPageSize = 1000

// Ports for outbound adapters.
type (
	// RecordStore reads whole collections and single records.
	RecordStore interface {
		// FetchAll pages through a collection until nothing remains and returns
		// every record in server order.
		FetchAll(ctx context.Context, collection string, filter Filter, pageSize int) ([]Record, error)

		// FetchOne returns a record by id. A missing record is reported with
		// found=false and a nil error.
		FetchOne(ctx context.Context, collection, id string) (rec Record, found bool, err error)
	}

	// IDFilterer is implemented by stores that honour an "_id in [...]"
	// constraint, which lets backfill resolve many ids in one paged request.
	IDFilterer interface {
		SupportsIDFilter() bool
	}
)

// ConstraintType is a filter operator understood by the store.
type ConstraintType string

const (
	Equals ConstraintType = "equals"
	In     ConstraintType = "in"
)

// Constraint is one {key, constraint_type, value} term of a filter.
type Constraint struct {
	Key   string         `json:"key"`
	Type  ConstraintType `json:"constraint_type"`
	Value any            `json:"value"`
}

// Filter is a conjunction of constraints. A nil filter matches everything.
type Filter []Constraint

// EqualsTo builds an equality constraint.
func EqualsTo(key string, value any) Constraint {
	return Constraint{Key: key, Type: Equals, Value: value}
}

// InSet builds a membership constraint.
func InSet(key string, values []string) Constraint {
	if values == nil {
		values = []string{}
	}
	return Constraint{Key: key, Type: In, Value: values}
}

// RemoteFetchError is returned when the store answers with a non-success
// status. It is fatal to the report being built.
type RemoteFetchError struct {
	Collection string
	Path       string
	Status     int
	Body       string
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("fetch %s: GET %s -> %d %s", e.Collection, e.Path, e.Status, e.Body)
}

// SupportsIDFilter reports whether s can resolve ids with an "in" filter.
func SupportsIDFilter(s RecordStore) bool {
	f, ok := s.(IDFilterer)
	return ok && f.SupportsIDFilter()
}
