// Package sweeper runs the periodic maintenance that keeps stored authorization
// state honest: deactivating cross-tenant rules and role assignments whose
// validity has ended, and pruning old audit events.
//
// Reads never depend on a sweep having run. Rule windows and assignment
// expiry are evaluated at read time; the sweeps only flip stored flags so
// listings and reports agree with what reads already enforce.
//
// # Usage
//
//	s := sweeper.New(logger, sweeper.WithMetrics(metrics))
//	_ = s.Add(sweeper.RuleExpiryJob("*/5 * * * *", engine))
//	_ = s.Add(sweeper.AssignmentExpiryJob("*/5 * * * *", manager.Ledger(), metrics))
//	s.Start(ctx)
//	defer s.Stop(context.Background())
package sweeper
