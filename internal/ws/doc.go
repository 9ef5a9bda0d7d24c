// Package ws streams widget repair reports over WebSocket.
//
// Every report published on the widget hub is pushed to connected clients
// as it happens. Slow clients miss reports rather than slowing the hub.
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//   - filter: Only stream reports for widget_id ("" clears the filter)
//   - history: Replay recent reports, optionally capped by limit
//
// Message Types (Server → Client):
//   - system: Connection established, carries the subscriber id
//   - report: A repair report
//   - history: Recent reports, oldest first
//   - pong, filter: Acknowledgements
//   - error: Unknown request
//
// Example Usage:
//
//	handler := ws.NewHandler(manager.Hub(), metrics, logger)
//	router.GET("/stream", handler.HandleConnection)
package ws
