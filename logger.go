// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rgraph

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record.
// Enabled returns false so callers skip formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var logger atomic.Pointer[slog.Logger]

func init() { logger.Store(slog.New(nopHandler{})) }

// SetLogger sets the logger used by rgraph and all its
// sub-packages.
// By default nothing is logged. Passing nil restores the
// default behavior.
// It is safe to call SetLogger concurrently with code that
// is logging.
//
// Levels:
//   - [slog.LevelDebug]: per-frame schedule and barrier counts
//   - [slog.LevelInfo]: driver registration and selection
//   - [slog.LevelWarn]: pool growth, skipped frames
//   - [slog.LevelError]: invariant violations (followed by a panic)
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	logger.Store(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger { return logger.Load() }
