package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nsqio/go-nsq"

	"kora/backend/internal/config"
	"kora/backend/internal/middleware"
)

// ProgressEvent is broadcast on the ingest.progress topic after every state
// change of an ingestion. Delivery is best effort; the source row in the
// database stays authoritative.
type ProgressEvent struct {
	SourceID      string `json:"source_id"`
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	Message       string `json:"message,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type Publisher interface {
	Publish(topic string, body []byte) error
}

// Broadcaster pushes progress events to NSQ. A publish failure is logged and
// swallowed so it can never fail the ingestion it describes.
type Broadcaster struct {
	pub Publisher
}

func NewBroadcaster(pub Publisher) *Broadcaster {
	return &Broadcaster{pub: pub}
}

func (b *Broadcaster) Broadcast(ctx context.Context, ev ProgressEvent) {
	if b == nil || b.pub == nil {
		return
	}
	ev.CorrelationID = middleware.GetCorrelationID(ctx)

	body, err := json.Marshal(ev)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal progress event", "error", err)
		return
	}
	if err := b.pub.Publish(config.TopicIngestProgress, body); err != nil {
		slog.WarnContext(ctx, "failed to publish progress event", "error", err, "source_id", ev.SourceID)
	}
}

// Hub fans progress events out to in-process subscribers, one channel per
// watcher of a source. It implements nsq.Handler so it can be attached to an
// ingest.progress consumer directly.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan ProgressEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan ProgressEvent]struct{})}
}

// Subscribe registers a watcher for one source. The returned cancel func must
// be called when the watcher goes away.
func (h *Hub) Subscribe(sourceID string) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 16)

	h.mu.Lock()
	if h.subs[sourceID] == nil {
		h.subs[sourceID] = make(map[chan ProgressEvent]struct{})
	}
	h.subs[sourceID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[sourceID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, sourceID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Dispatch delivers an event to every subscriber of its source. Slow
// subscribers are skipped rather than blocking the consumer loop.
func (h *Hub) Dispatch(ev ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.SourceID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var ev ProgressEvent
	if err := json.Unmarshal(m.Body, &ev); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid progress event", "error", err)
		return nil
	}

	h.Dispatch(ev)
	return nil
}
