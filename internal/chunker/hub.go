package chunker

import "sync"

// subscriberBuffer is the per-observer channel capacity. A subscriber
// that falls further behind than this simply misses events.
const subscriberBuffer = 16

// Hub fans ProgressEvents out to attached observers. Observers subscribe
// per file id, so only subscribers of the run's file receive its events;
// file id 0 subscribes to every run. Delivery is best-effort and in
// emission order per observer. There is no buffering or replay across
// attach/detach.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

type subscriber struct {
	fileID int64
	ch     chan ProgressEvent
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]*subscriber)}
}

// Subscribe attaches an observer for events of the given file id (0 for
// all runs). The returned cancel func detaches the observer and closes
// its channel; it is safe to call more than once.
func (h *Hub) Subscribe(fileID int64) (<-chan ProgressEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	sub := &subscriber{fileID: fileID, ch: make(chan ProgressEvent, subscriberBuffer)}
	h.subs[id] = sub

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if s, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

// Publish delivers ev to every subscriber matching its file id. A full
// subscriber channel drops the event rather than blocking the run.
func (h *Hub) Publish(ev ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if sub.fileID != 0 && sub.fileID != ev.Data.FileID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports attached observers. Used for metrics.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
