// Package logger builds *slog.Logger instances and holds the attribute
// helpers shared by all packages.
//
// New creates a JSON or text logger from functional options. NewFromConfig
// starts from the defaults of an environment.Environment and applies the
// LOG_LEVEL and LOG_FORMAT overrides. Context extractors add request scoped
// attributes to each record:
//
//	log, err := logger.NewFromConfig(cfg.Log, cfg.Env, "tenantgate",
//	    logger.WithContextExtractors(
//	        requestid.LoggerExtractor(),
//	        tenant.LoggerExtractor(),
//	    ),
//	)
//
// Attribute helpers (Error, Component, TenantID, Domain, Origin, RequestID,
// Severity, Duration) keep key names consistent. Error and Errors return an
// empty attribute for nil errors, so they can be passed unconditionally.
package logger
