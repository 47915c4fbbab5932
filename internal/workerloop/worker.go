// Package worker provides small generic helpers for background loops:
// a cancelable sleep and a panic recovery wrapper, shared by the
// scheduler's cron jobs and the bulk campaign coordinator's per-date
// loop.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const logFieldWorker = "worker"

// Wait blocks until duration elapses or context is canceled.
// Returns a wrapped context error if context is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}

// RecoverPanic recovers from panics and logs them.
// Use as: defer worker.RecoverPanic(logger, "operation name")
func RecoverPanic(logger *zerolog.Logger, operation string) {
	if r := recover(); r != nil {
		if logger == nil {
			nop := zerolog.Nop()
			logger = &nop
		}

		logger.Error().
			Str(logFieldWorker, operation).
			Interface("panic", r).
			Msg("recovered from panic")
	}
}
