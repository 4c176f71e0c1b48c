package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"agfdash/internal/store"
)

// FixtureFile is the file NewFromFiles looks for inside its directory.
const FixtureFile = "records.yaml"

// Store keeps collections in memory and answers with the same paging
// semantics as the Bubble Data API.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]store.Record
	calls       map[string]int
}

var (
	_ store.RecordStore = (*Store)(nil)
	_ store.IDFilterer  = (*Store)(nil)
)

func New() *Store {
	return &Store{
		collections: make(map[string][]store.Record),
		calls:       make(map[string]int),
	}
}

// NewFromFiles seeds the store from base/records.yaml. A missing file yields
// an empty store. The fixture maps collection names to record lists.
func NewFromFiles(base string) (*Store, error) {
	s := New()
	path := filepath.Join(base, FixtureFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	if err := s.Load(data); err != nil {
		return nil, fmt.Errorf("load fixture %s: %w", path, err)
	}
	return s, nil
}

// Load decodes a YAML (or JSON) fixture and appends its records.
func (s *Store) Load(data []byte) error {
	var raw map[string][]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	for coll, recs := range raw {
		for _, r := range recs {
			s.Put(coll, store.Record(r))
		}
	}
	return nil
}

// Put appends records to a collection.
func (s *Store) Put(collection string, recs ...store.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], recs...)
}

// Page returns one page of matches starting at cursor.
func (s *Store) Page(collection string, filter store.Filter, limit, cursor int) Page {
	if limit <= 0 {
		limit = store.DefaultPageSize
	}
	if cursor < 0 {
		cursor = 0
	}

	s.mu.RLock()
	var matched []store.Record
	for _, r := range s.collections[collection] {
		if Matches(r, filter) {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	start := min(cursor, len(matched))
	end := min(start+limit, len(matched))
	return Page{
		Results:   matched[start:end],
		Cursor:    cursor,
		Remaining: len(matched) - end,
	}
}

// Page mirrors the list envelope of the record store.
type Page struct {
	Results   []store.Record `json:"results"`
	Cursor    int            `json:"cursor"`
	Remaining int            `json:"remaining"`
}

// FetchAll implements store.RecordStore.
func (s *Store) FetchAll(ctx context.Context, collection string, filter store.Filter, pageSize int) ([]store.Record, error) {
	s.count("fetchAll", collection)

	var out []store.Record
	cursor := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := s.Page(collection, filter, pageSize, cursor)
		out = append(out, p.Results...)
		if p.Remaining <= 0 || len(p.Results) == 0 {
			return out, nil
		}
		cursor = p.Cursor + len(p.Results)
	}
}

// FetchOne implements store.RecordStore.
func (s *Store) FetchOne(ctx context.Context, collection, id string) (store.Record, bool, error) {
	s.count("fetchOne", collection)
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.collections[collection] {
		if r.ID() == id {
			return r, true, nil
		}
	}
	return nil, false, nil
}

// SupportsIDFilter implements store.IDFilterer.
func (s *Store) SupportsIDFilter() bool { return true }

// Calls returns how many times op ("fetchAll" or "fetchOne") hit collection.
func (s *Store) Calls(op, collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op+":"+collection]
}

func (s *Store) count(op, collection string) {
	s.mu.Lock()
	s.calls[op+":"+collection]++
	s.mu.Unlock()
}
