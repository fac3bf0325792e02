// Package isolation enforces row-level tenant isolation and records violations.
//
// An Enforcer compares the tenant a request was resolved to with the tenant
// reference an operation carries. Super-admin contexts are always allowed,
// contexts without a tenant are always denied, and a reference to another
// tenant is denied with ErrCrossTenantAccess. Every denial is recorded to a
// Monitor before the decision is returned.
//
// Severity of a cross-tenant reference depends on where it was found:
// body references and write operations are critical, path references are
// high and query references are medium. Unresolved contexts are critical.
//
// The Monitor keeps the most recent violations in a bounded buffer, counts
// them by severity and field, and forwards each one to its sinks. AsyncSink
// batches violations to a BatchWriter in the background; RedisStreamWriter,
// PostgresWriter and OpenSearchWriter are the available writers.
//
//	monitor := isolation.NewMonitor(isolation.WithSinks(sink))
//	enforcer := isolation.NewEnforcer(monitor)
//
//	if err := enforcer.Check(ctx, isolation.Reference{TenantID: orderTenantID, Field: isolation.FieldBody, Write: true}); err != nil {
//		return err
//	}
package isolation
