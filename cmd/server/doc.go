// Command server runs the dashboard widget engine.
//
// The server hosts widget instances, the network bridge proxy they fetch
// through, and the repair report stream.
//
// Usage:
//
//	# Start the server (default command)
//	./server serve --port 8000
//
//	# Development mode (colored logs, debug level)
//	./server --dev
//
//	# Compile a widget source and report syntax errors
//	./server check widgets/clock.js
//
//	# Render once, offline
//	./server render widgets/clock.js --width 320 --height 120 --data '{"tz":"UTC"}'
//
// Configuration comes from an optional TOML file (--config or
// DASHBOARD_CONFIG) overridden by environment variables.
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
