/*
Package monitoring provides Prometheus metrics for the dashboard backend.

Metrics live on a private registry served by Handler. *Metrics satisfies the
observer interfaces of the widget sandbox and of the network bridge, so
compiles, renders, crashes by kind, proxy traffic and breaker transitions are
recorded where they happen.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	proxy := bridge.NewProxy(opts, bridge.WithProxyObserver(metrics))
*/
package monitoring
