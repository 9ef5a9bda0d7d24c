// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output
//
// Widget runtimes get a child logger tagged with their widget id so console
// output captured from generated code can be traced back to its widget:
//
//	logger := logging.NewFor("info", false)
//	logger.Widget(id).Info("widget console", zap.String("message", msg))
package logging
