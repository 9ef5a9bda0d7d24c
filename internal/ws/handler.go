package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/Dashboard/backend/internal/domain/widget"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	maxMessage   = 4096
	sendBuffer   = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // The dashboard UI may be served from another port in dev
	},
}

// Message is a client request on the stream.
type Message struct {
	Type     string `json:"type"`
	WidgetID string `json:"widget_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Connections counts open streams.
type Connections interface {
	IncWSConnections()
	DecWSConnections()
}

type nopConnections struct{}

func (nopConnections) IncWSConnections() {}
func (nopConnections) DecWSConnections() {}

// Handler streams repair reports to websocket clients.
type Handler struct {
	hub     *widget.Hub
	conns   Connections
	logger  *zap.Logger
	pingGap time.Duration
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *widget.Hub, conns Connections, logger *zap.Logger) *Handler {
	if conns == nil {
		conns = nopConnections{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{hub: hub, conns: conns, logger: logger, pingGap: pingInterval}
}

// session serialises writes to one connection and holds its widget filter.
type session struct {
	conn *websocket.Conn
	mu   sync.Mutex

	filterMu sync.RWMutex
	widgetID string
}

func (s *session) send(data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(data)
}

func (s *session) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *session) sendError(msg string) error {
	return s.send(gin.H{"type": "error", "message": msg})
}

func (s *session) setFilter(widgetID string) {
	s.filterMu.Lock()
	s.widgetID = widgetID
	s.filterMu.Unlock()
}

func (s *session) wants(r widget.Report) bool {
	s.filterMu.RLock()
	defer s.filterMu.RUnlock()
	return s.widgetID == "" || s.widgetID == r.WidgetID
}

// HandleConnection handles WebSocket upgrade and streams reports until the
// client goes away.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessage)

	h.conns.IncWSConnections()
	defer h.conns.DecWSConnections()

	subID, reports, cancel := h.hub.Subscribe(sendBuffer)
	defer cancel()

	ctx, stop := context.WithCancel(c.Request.Context())
	defer stop()

	s := &session{conn: conn}
	logger := h.logger.With(zap.String("subscriber", subID))
	logger.Debug("report stream opened")

	if err := s.send(gin.H{
		"type":       "system",
		"message":    "Connected to widget report stream",
		"subscriber": subID,
	}); err != nil {
		return
	}

	go h.readLoop(ctx, stop, s, logger)
	h.writeLoop(ctx, s, reports, logger)
	logger.Debug("report stream closed")
}

func (h *Handler) readLoop(ctx context.Context, stop context.CancelFunc, s *session, logger *zap.Logger) {
	defer stop()
	for {
		var msg Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		var err error
		switch msg.Type {
		case "ping":
			err = s.send(gin.H{"type": "pong"})
		case "filter":
			s.setFilter(msg.WidgetID)
			err = s.send(gin.H{"type": "filter", "widget_id": msg.WidgetID})
		case "history":
			err = s.send(gin.H{"type": "history", "reports": h.filtered(s, msg.Limit)})
		default:
			err = s.sendError("unknown message type")
		}
		if err != nil {
			return
		}
	}
}

func (h *Handler) filtered(s *session, limit int) []widget.Report {
	all := h.hub.Recent(0)
	out := make([]widget.Report, 0, len(all))
	for _, r := range all {
		if s.wants(r) {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (h *Handler) writeLoop(ctx context.Context, s *session, reports <-chan widget.Report, logger *zap.Logger) {
	ticker := time.NewTicker(h.pingGap)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case r, ok := <-reports:
			if !ok {
				return
			}
			if !s.wants(r) {
				continue
			}
			if err := s.send(gin.H{"type": "report", "report": r}); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := s.ping(); err != nil {
				return
			}
		}
	}
}
