// Package requestid tags each HTTP request with a correlation ID.
//
//	log := logger.New(
//	    logger.WithEnvironment(env, "subsyncd"),
//	    logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	r.Use(requestid.Middleware)
//
// The ID is taken from a valid X-Request-ID header or generated, stored in the
// request context, echoed in the response header and attached to log records.
package requestid
