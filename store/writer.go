package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dhcgn/mail-merge/clock"
	"github.com/dhcgn/mail-merge/model"
)

const (
	defaultWriteAttempts = 3
	defaultWriteBackoff  = 500 * time.Millisecond
)

// StatusWriter writes status cells immediately, retrying with exponential
// backoff and finally falling back to a value-only write.
type StatusWriter struct {
	store    Store
	clock    clock.Clock
	logger   *slog.Logger
	attempts int
	backoff  time.Duration
}

type WriterOption func(*StatusWriter)

// WithRetry overrides the number of formatted write attempts and the first
// backoff delay.
func WithRetry(attempts int, backoff time.Duration) WriterOption {
	return func(w *StatusWriter) {
		if attempts > 0 {
			w.attempts = attempts
		}
		if backoff >= 0 {
			w.backoff = backoff
		}
	}
}

func NewStatusWriter(s Store, clk clock.Clock, logger *slog.Logger, opts ...WriterOption) *StatusWriter {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &StatusWriter{
		store:    s,
		clock:    clk,
		logger:   logger,
		attempts: defaultWriteAttempts,
		backoff:  defaultWriteBackoff,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write stores kind (with optional detail) for row and flushes.
func (w *StatusWriter) Write(ctx context.Context, row int, kind model.StatusKind, detail string) error {
	text := kind.Format(detail)

	var lastErr error
	for attempt := 0; attempt < w.attempts; attempt++ {
		if attempt > 0 {
			if err := w.clock.Sleep(ctx, backoffDelay(w.backoff, attempt-1)); err != nil {
				return fmt.Errorf("context cancelled during status retry: %w", err)
			}
		}

		err := w.store.WriteStatus(ctx, row, text, kind.Color())
		if err == nil {
			return w.flush(ctx, row)
		}
		lastErr = err
		w.logger.Warn("status write failed", "row", row, "attempt", attempt+1, "err", err)
	}

	if err := w.store.WriteStatusValue(ctx, row, text); err != nil {
		return fmt.Errorf("write status for row %d after %d attempts: %w (value-only fallback: %v)", row, w.attempts, lastErr, err)
	}
	w.logger.Warn("status written without formatting", "row", row, "status", text)
	return w.flush(ctx, row)
}

func (w *StatusWriter) flush(ctx context.Context, row int) error {
	if err := w.store.Flush(ctx); err != nil {
		return fmt.Errorf("flush status for row %d: %w", row, err)
	}
	return nil
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}
