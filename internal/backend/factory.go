package backend

import (
	"context"
	"fmt"
	"log/slog"

	"agfdash/internal/store/bubble"
	"agfdash/internal/store/memory"
)

const defaultFixtureDir = "data"

// Factory opens record stores from Config.
type Factory struct {
	logger *slog.Logger
}

// NewFactory returns a Factory logging to logger, or slog.Default when nil.
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// Open validates cfg and opens the selected store.
func (f *Factory) Open(ctx context.Context, cfg Config) (*Opened, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case Bubble:
		return f.openBubble(ctx, cfg)
	case Memory:
		return f.openMemory(ctx, cfg)
	}
	return nil, fmt.Errorf("unsupported data backend %q", cfg.Kind)
}

func (f *Factory) openBubble(ctx context.Context, cfg Config) (*Opened, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = f.logger
	}
	cli, err := bubble.New(bubble.Config{
		BaseURL:  cfg.BubbleBaseURL,
		APIKey:   cfg.BubbleAPIKey,
		Timeout:  cfg.HTTPTimeout,
		RetryMax: cfg.HTTPRetryMax,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init bubble client: %w", err)
	}
	f.logger.InfoContext(ctx, "Record store ready",
		"backend", Bubble,
		"base_url", cfg.BubbleBaseURL,
		"retry_max", cfg.HTTPRetryMax)
	return &Opened{Store: cli, Close: closerOf(cli)}, nil
}

func (f *Factory) openMemory(ctx context.Context, cfg Config) (*Opened, error) {
	dir := cfg.FixtureDir
	if dir == "" {
		dir = defaultFixtureDir
	}
	st, err := memory.NewFromFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("load fixtures: %w", err)
	}
	f.logger.InfoContext(ctx, "Record store ready", "backend", Memory, "fixture_dir", dir)
	return &Opened{Store: st, Close: closerOf(st)}, nil
}
