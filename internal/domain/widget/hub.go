package widget

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultReportHistory is how many reports the hub remembers.
const DefaultReportHistory = 100

// Hub fans repair reports out to subscribers and keeps recent ones for
// clients that connect later.
type Hub struct {
	mu      sync.RWMutex
	recent  []Report
	limit   int
	subs    map[string]chan Report
	dropped map[string]int
	logger  *zap.Logger
}

// NewHub creates a hub remembering up to history reports.
func NewHub(history int, logger *zap.Logger) *Hub {
	if history <= 0 {
		history = DefaultReportHistory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		limit:   history,
		subs:    make(map[string]chan Report),
		dropped: make(map[string]int),
		logger:  logger,
	}
}

// Publish records r and delivers it to every subscriber without blocking;
// a subscriber whose buffer is full misses it.
func (h *Hub) Publish(r Report) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.recent = append(h.recent, r)
	if len(h.recent) > h.limit {
		h.recent = append([]Report(nil), h.recent[len(h.recent)-h.limit:]...)
	}

	for id, ch := range h.subs {
		select {
		case ch <- r:
		default:
			h.dropped[id]++
			h.logger.Warn("report subscriber lagging, dropping report",
				zap.String("subscriber", id),
				zap.String("report_id", r.ID))
		}
	}
}

// Recent returns up to limit reports, oldest first. limit <= 0 means all.
func (h *Hub) Recent(limit int) []Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	start := 0
	if limit > 0 && len(h.recent) > limit {
		start = len(h.recent) - limit
	}
	return append([]Report(nil), h.recent[start:]...)
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel.
func (h *Hub) Subscribe(buffer int) (string, <-chan Report, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	id := uuid.NewString()
	ch := make(chan Report, buffer)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return id, ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			delete(h.dropped, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
