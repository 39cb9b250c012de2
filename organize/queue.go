package organize

import (
	"log/slog"
	"sync"
)

// WorkQueue is a thread-safe set-based queue of source basenames
// awaiting processing. Duplicates are deduplicated, which matters in
// watch mode where fsnotify can report the same file several times.
// Pop returns names in FIFO order.
type WorkQueue struct {
	mu     sync.Mutex
	set    map[string]struct{}
	order  []string
	notify chan struct{} // signaled when items are added
}

func NewWorkQueue() *WorkQueue {
	return &WorkQueue{
		set:    make(map[string]struct{}),
		notify: make(chan struct{}, 1),
	}
}

// Push adds a basename to the queue. Already-queued names are no-ops.
func (q *WorkQueue) Push(name string) {
	q.mu.Lock()
	if _, exists := q.set[name]; exists {
		q.mu.Unlock()
		if logEnabled(slog.LevelDebug) {
			sub("queue").Debug("push dedup", "name", name)
		}
		return
	}
	q.set[name] = struct{}{}
	q.order = append(q.order, name)
	newLen := len(q.order)
	q.mu.Unlock()

	if logEnabled(slog.LevelDebug) {
		sub("queue").Debug("push", "name", name, "queueLen", newLen)
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// PushMany adds multiple basenames to the queue.
func (q *WorkQueue) PushMany(names []string) {
	q.mu.Lock()
	added := 0
	for _, name := range names {
		if _, exists := q.set[name]; exists {
			continue
		}
		q.set[name] = struct{}{}
		q.order = append(q.order, name)
		added++
	}
	newLen := len(q.order)
	q.mu.Unlock()

	if logEnabled(slog.LevelDebug) {
		sub("queue").Debug("pushMany", "requested", len(names), "added", added, "queueLen", newLen)
	}

	if added > 0 {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
}

// Pop removes and returns the next basename. Blocks until one is
// available or done is closed. Returns ("", false) when done.
func (q *WorkQueue) Pop(done <-chan struct{}) (string, bool) {
	for {
		q.mu.Lock()
		if len(q.order) > 0 {
			name := q.order[0]
			q.order = q.order[1:]
			delete(q.set, name)
			remaining := len(q.order)
			q.mu.Unlock()
			if logEnabled(slog.LevelDebug) {
				sub("queue").Debug("pop", "name", name, "queueLen", remaining)
			}
			return name, true
		}
		q.mu.Unlock()

		select {
		case <-done:
			sub("queue").Debug("pop cancelled")
			return "", false
		case <-q.notify:
		}
	}
}

// Has checks whether a basename is currently queued.
func (q *WorkQueue) Has(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, exists := q.set[name]
	return exists
}

// Len returns the current queue size.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Drain removes and returns all queued basenames.
func (q *WorkQueue) Drain() []string {
	q.mu.Lock()
	result := q.order
	q.order = nil
	q.set = make(map[string]struct{})
	q.mu.Unlock()

	if logEnabled(slog.LevelDebug) {
		sub("queue").Debug("drain", "count", len(result))
	}
	return result
}
