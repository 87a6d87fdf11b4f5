package watcher

import (
	"context"
	"log/slog"
	"time"
)

// Trigger is run once per settled burst of changes under a watched root.
type Trigger interface {
	OnChange(ctx context.Context, root string) error
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func(ctx context.Context, root string) error

func (f TriggerFunc) OnChange(ctx context.Context, root string) error {
	return f(ctx, root)
}

type Config struct {
	DebounceDuration time.Duration
	BufferSize       int
	IgnorePatterns   []string
	Logger           *slog.Logger
}
