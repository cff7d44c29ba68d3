// Package logger builds *slog.Logger instances with environment defaults,
// static attributes and values pulled from the request context.
//
//	log := logger.New(
//		logger.WithEnvironment("production", "billingd"),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "subscription updated",
//		logger.TenantID(t.ID),
//		logger.PlanID(p.ID),
//	)
//
// Attributes named like credentials (signature, secret, api_key and the
// like) are written as [REDACTED]; WithRedactedKeys extends the list.
//
// Attribute helpers keep key names consistent across packages. Error and
// Errors return an empty attribute for nil errors, so they can be passed
// unconditionally. Components default to Discard when no logger is given.
package logger
