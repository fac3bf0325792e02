// Package requestid correlates log records and isolation violations of a
// single HTTP request.
//
// The middleware reuses the client's X-Request-ID when it is well formed and
// generates a UUIDv4 otherwise. The ID is stored in the request context,
// echoed in the response and picked up by LoggerExtractor and by the
// isolation enforcer when it records a violation.
package requestid
