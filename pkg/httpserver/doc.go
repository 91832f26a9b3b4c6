// Package httpserver runs an http.Handler with graceful shutdown and health probes.
//
//	srv := httpserver.NewFromConfig(cfg,
//	    httpserver.WithLogger(log),
//	    httpserver.WithStopHook(pool.Close),
//	)
//	if err := srv.Run(ctx, router); err != nil {
//	    log.Error("server stopped", logger.Error(err))
//	}
//
// Run returns when ctx is canceled or the process receives SIGINT or SIGTERM.
// Shutdown waits for in-flight requests up to the configured timeout, then runs
// the stop hooks.
//
// Liveness and Readiness build handlers for orchestrator probes. Readiness
// takes named checks and reports which ones failed:
//
//	r.Get("/health/ready", httpserver.Readiness(log, 2*time.Second,
//	    httpserver.Check{Name: "postgres", Probe: pool.Ping},
//	))
package httpserver
