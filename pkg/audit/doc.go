// Package audit records authorization decisions and changes for compliance review.
//
// # Overview
//
// Audit sinks implement Logger. Components emit events for cross-tenant
// checks, role assignment changes, rule administration, privacy setting
// updates and risk assessments. Emission is best-effort: a failing sink is
// logged and never changes the outcome of the operation that produced the
// event (see Dispatch).
//
// # Sinks
//
//   - DBLogger: PostgreSQL audit_logs table, with Search and Cleanup
//   - MultiLogger: fan-out, asynchronous by default
//   - MemoryLogger: in-process, for tests and local runs
//   - NoOp: discards everything
//
// # Usage Example
//
//	dbLogger, _ := audit.NewDBLogger(db)
//	sink := audit.NewMultiLogger(dbLogger)
//	defer sink.Close()
//
//	events, err := dbLogger.Search(ctx, audit.SearchFilter{
//		EventTypes: []audit.EventType{audit.EventTypeAuthzCrossTenantCheck},
//		Limit:      50,
//	})
package audit
