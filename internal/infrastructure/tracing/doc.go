/*
Package tracing provides lightweight request tracing.

Spans carry ULID trace and span ids, propagate through X-Trace-ID and
X-Span-ID headers and are written to the zap logger by a buffered collector.

# Usage

	tracer := tracing.New("dashboard", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	client := resty.New().OnBeforeRequest(tracing.RestyMiddleware())

The network bridge client installs RestyMiddleware so a widget's proxyFetch
call and the proxy request it produces share one trace id.
*/
package tracing
