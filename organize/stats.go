package organize

import (
	"sync"
	"sync/atomic"
)

// Stats holds the process-lifetime session counters. Counters are
// atomic; the unique-file set and failure list are mutex guarded.
type Stats struct {
	total             atomic.Int64
	succeeded         atomic.Int64
	failed            atomic.Int64
	warnings          atomic.Int64
	recoverableEvents atomic.Int64
	successfulRetries atomic.Int64

	mu          sync.Mutex
	uniqueFiles map[string]struct{}
	failures    []Failure
}

// NewStats creates an empty counter set.
func NewStats() *Stats {
	return &Stats{uniqueFiles: make(map[string]struct{})}
}

func (s *Stats) recordTotal()   { s.total.Add(1) }
func (s *Stats) recordSuccess() { s.succeeded.Add(1) }
func (s *Stats) recordWarning() { s.warnings.Add(1) }

func (s *Stats) recordFailure(name, msg string) {
	s.failed.Add(1)
	s.mu.Lock()
	s.failures = append(s.failures, Failure{Name: name, Message: Redact(msg)})
	s.mu.Unlock()
}

func (s *Stats) recordSuccessfulRetry() {
	if s == nil {
		return
	}
	s.successfulRetries.Add(1)
}

// recordRecoverableEvent counts one retry event and, the first time a
// given filename is affected, the unique-files counter.
func (s *Stats) recordRecoverableEvent(filename string) {
	if s == nil {
		return
	}
	s.recoverableEvents.Add(1)
	s.mu.Lock()
	s.uniqueFiles[filename] = struct{}{}
	s.mu.Unlock()
}

// StatsSnapshot is the aggregate reported once at session end.
type StatsSnapshot struct {
	Total                            int64
	Succeeded                        int64
	Failed                           int64
	Warnings                         int64
	RecoverableRetryEvents           int64
	SuccessfulRetries                int64
	UniqueFilesWithRecoverableIssues int64
}

// Snapshot returns a consistent copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	unique := int64(len(s.uniqueFiles))
	s.mu.Unlock()
	return StatsSnapshot{
		Total:                            s.total.Load(),
		Succeeded:                        s.succeeded.Load(),
		Failed:                           s.failed.Load(),
		Warnings:                         s.warnings.Load(),
		RecoverableRetryEvents:           s.recoverableEvents.Load(),
		SuccessfulRetries:                s.successfulRetries.Load(),
		UniqueFilesWithRecoverableIssues: unique,
	}
}

// Failures returns the per-failure detail list for the session summary.
func (s *Stats) Failures() []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Failure, len(s.failures))
	copy(out, s.failures)
	return out
}
