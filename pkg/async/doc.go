// Package async runs best-effort background work with panic recovery,
// timeout enforcement and error logging.
//
// SafeGo is used wherever a result must not hold up the caller, such as
// asynchronous cross-tenant check records and permission cache purges.
//
//	async.SafeGo(ctx, logger, 5*time.Second, "cross-tenant audit", func(ctx context.Context) error {
//		return sink.Log(ctx, event)
//	})
package async
