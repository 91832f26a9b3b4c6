// Package metrics exposes reconciliation counters to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	collector := metrics.NewCollector(reg)
//	engine := subscription.NewEngine(store, users, plans, provider,
//	    subscription.WithMetrics(collector),
//	)
//	r.Handle("/metrics", metrics.Handler(reg))
//
// All metric names are prefixed with "subsync_".
package metrics
