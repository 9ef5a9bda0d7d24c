/*
Package bridge is the network bridge between widget code and the outside
world.

Widget code never touches the network. Its proxyFetch calls go through
Client, which posts a Request to the same-origin proxy route. Proxy, the
server half, validates the target URL, rewrites headers so the request looks
like it comes from the target's own origin, follows the target through a
per-host circuit breaker and answers with the upstream status and body,
decoded and transcoded to UTF-8. Upstream Set-Cookie values come back in
X-Set-Cookie since browsers and fetch shims hide Set-Cookie.

Wire contract:

	POST /api/proxy {"url", "method", "headers", "body"}
	200..599  upstream status and body
	400       {"error": "Invalid URL", "details"}
	502       {"error": "Proxy request failed", "details", "cause"}
*/
package bridge
