// Package logger builds *slog.Logger values with functional options and keeps
// attribute names consistent across the service.
//
// New picks a text or JSON handler, applies static attributes and wraps the
// result in a ContextHandler that copies request-scoped values (for example
// the request ID set by pkg/requestid) from the context into every record:
//
//	log := logger.New(
//	    logger.WithEnvironment(os.Getenv("APP_ENV"), "subsyncd"),
//	    logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "subscription updated",
//	    logger.ExternalSubscriptionID(sub.ExternalSubscriptionID),
//	    logger.SubscriptionStatus(sub.Status.String()),
//	)
//
// WithEnvironment selects debug-level text output for development and
// info-level JSON everywhere else. Attribute helpers such as Error and Errors
// return an empty attribute for nil errors, so they can be passed unconditionally.
package logger
