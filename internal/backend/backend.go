// Package backend selects and opens the record store the pipeline reads
// from.
package backend

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"agfdash/internal/config"
	"agfdash/internal/store"
)

// Kind names a record store implementation.
type Kind string

const (
	// Bubble reads from a live Bubble app over its Data API.
	Bubble Kind = "bubble"
	// Memory serves records from a fixture file.
	Memory Kind = "memory"
)

// Kinds lists the supported record stores.
var Kinds = []Kind{Bubble, Memory}

func (k Kind) valid() bool {
	return k == Bubble || k == Memory
}

// Config selects a record store and carries its settings.
type Config struct {
	Kind Kind

	BubbleBaseURL string
	BubbleAPIKey  string
	HTTPTimeout   time.Duration
	HTTPRetryMax  int
	Logger        *slog.Logger

	// FixtureDir is where the memory store looks for its fixture file.
	FixtureDir string
}

// FromAppConfig extracts the record store settings from the app config.
func FromAppConfig(app *config.Config) (Config, error) {
	if app == nil {
		return Config{}, errors.New("app config is nil")
	}
	kind := Kind(app.DataBackend)
	if !kind.valid() {
		return Config{}, fmt.Errorf("unknown data backend %q (want one of %v)", app.DataBackend, Kinds)
	}
	return Config{
		Kind:          kind,
		BubbleBaseURL: app.BubbleBaseURL,
		BubbleAPIKey:  app.BubbleAPIKey,
		HTTPTimeout:   app.HTTPTimeout,
		HTTPRetryMax:  app.HTTPRetryMax,
		FixtureDir:    app.MemoryDataDir,
	}, nil
}

// Validate checks that the selected store has what it needs.
func (c Config) Validate() error {
	if !c.Kind.valid() {
		return fmt.Errorf("unknown data backend %q", c.Kind)
	}
	if c.Kind == Bubble {
		var errs []error
		if c.BubbleBaseURL == "" {
			errs = append(errs, errors.New("bubble base URL is required for bubble backend"))
		}
		if c.BubbleAPIKey == "" {
			errs = append(errs, errors.New("bubble API key is required for bubble backend"))
		}
		return errors.Join(errs...)
	}
	return nil
}

// Opened is a ready record store plus whatever releases its resources.
type Opened struct {
	Store store.RecordStore
	Close func() error
}

func closerOf(s store.RecordStore) func() error {
	if c, ok := s.(io.Closer); ok {
		return c.Close
	}
	return func() error { return nil }
}
