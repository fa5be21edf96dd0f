package async

import (
	"context"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// SafeGo executes fn in a goroutine with:
// - Context cancellation detached from the caller
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// The caller's context values (request ID, client address) are kept but its
// cancellation is not, so work started at the end of a request still runs.
//
// Example:
//
//	SafeGo(ctx, logger, 5*time.Second, "cross-tenant audit", func(ctx context.Context) error {
//	    return sink.Log(ctx, event)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	if logger == nil {
		logger = observability.NewLogger(observability.WarnLevel, nil)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Warn("background task failed")
		}
	}()
}

// SafeGoNoError is like SafeGo but for functions that don't return errors.
//
// Example:
//
//	SafeGoNoError(ctx, logger, time.Second, "cache purge", func(ctx context.Context) {
//	    cache.Purge(ctx)
//	})
func SafeGoNoError(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, logger, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}
