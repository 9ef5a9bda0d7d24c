// Package http provides HTTP handlers and routing for the dashboard REST API.
//
// This package implements all HTTP endpoints using the Gin framework, including
// health checks, widget management, event dispatch and the network bridge.
//
// Endpoints:
//   - Health: / and /health
//   - Metrics: /metrics (prometheus), /metrics/json
//   - Bridge: /api/proxy
//   - Widgets: /widgets, /widgets/:id, /widgets/:id/{resize,render,view,events,report}
//   - Reports: /reports
//
// Errors are returned as {"success": false, "error": "..."} except on the
// proxy route, whose error body follows the bridge wire contract.
//
// Example Usage:
//
//	handlers := http.NewHandlers(manager, proxy, metrics, logger)
//	handlers.Register(router, "/api/proxy", middleware.RateLimit(proxyLimits))
package http
