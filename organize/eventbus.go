package organize

import (
	"sync"
)

// Event types published over the ProgressBus.
const (
	EventStarted       = "started"
	EventStatusChanged = "status_changed"
	EventSucceeded     = "succeeded"
	EventSkipped       = "skipped"
	EventFailed        = "failed"
)

// ProgressEvent is a per-file status update emitted by the pipeline.
// Consumers drive progress UIs off it; processing never depends on a
// consumer being present.
type ProgressEvent struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	Status    string `json:"status,omitempty"`
	FinalName string `json:"finalName,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Err       string `json:"err,omitempty"`
}

// ProgressBus broadcasts ProgressEvents to all subscribers.
type ProgressBus struct {
	mu      sync.RWMutex
	clients map[chan ProgressEvent]struct{}
}

func NewProgressBus() *ProgressBus {
	return &ProgressBus{
		clients: make(map[chan ProgressEvent]struct{}),
	}
}

// Subscribe registers a new consumer and returns its event channel.
func (b *ProgressBus) Subscribe() chan ProgressEvent {
	ch := make(chan ProgressEvent, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a consumer and closes its channel.
func (b *ProgressBus) Unsubscribe(ch chan ProgressEvent) {
	b.mu.Lock()
	delete(b.clients, ch)
	b.mu.Unlock()
	close(ch)
}

// Publish sends an event to all subscribers.
// Slow consumers are skipped (non-blocking send).
func (b *ProgressBus) Publish(event ProgressEvent) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- event:
		default:
			// slow consumer, drop event
		}
	}
}
