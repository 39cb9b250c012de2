package organize

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/marusama/semaphore/v2"
	"github.com/maruel/natural"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentCalls caps in-flight provider requests regardless of
// the worker count, so a wide worker pool does not hammer the API.
const maxConcurrentCalls = 4

// Session owns everything one batch run needs. Construct with
// NewSession, run once with Run.
type Session struct {
	cfg       Config
	fsys      afero.Fs
	provider  Provider
	extractor ContentExtractor
	journal   *Journal
	cache     *ProposalCache
	stats     *Stats
	events    *ProgressBus
	limiter   semaphore.Semaphore
	queue     *WorkQueue
	errlog    *ErrorLog

	// nameMu serializes conflict resolution + move across workers.
	nameMu sync.Mutex
}

// Option customizes a Session, mainly for tests.
type Option func(*Session)

// WithProvider substitutes the filename provider.
func WithProvider(p Provider) Option { return func(s *Session) { s.provider = p } }

// WithExtractor substitutes the content extractor.
func WithExtractor(e ContentExtractor) Option { return func(s *Session) { s.extractor = e } }

// WithFs substitutes the filesystem used for conflict probing.
func WithFs(fsys afero.Fs) Option { return func(s *Session) { s.fsys = fsys } }

// WithBus substitutes the progress bus so callers can subscribe before
// the run starts.
func WithBus(b *ProgressBus) Option { return func(s *Session) { s.events = b } }

// NewSession validates cfg, applies defaults, and wires the run.
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	callCap := cfg.WorkerCount
	if callCap > maxConcurrentCalls {
		callCap = maxConcurrentCalls
	}

	s := &Session{
		cfg:     cfg,
		fsys:    afero.NewOsFs(),
		stats:   NewStats(),
		events:  NewProgressBus(),
		queue:   NewWorkQueue(),
		limiter: semaphore.New(callCap),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.provider == nil {
		p, err := NewProvider(cfg)
		if err != nil {
			return nil, err
		}
		s.provider = p
	}
	if s.extractor == nil {
		s.extractor = NewExtractor(cfg)
	}
	return s, nil
}

// Run processes the input directory to completion (or, in watch mode,
// until parent is cancelled). It always returns a Result; errors along
// the way land in the result rather than aborting callers.
func (s *Session) Run(parent context.Context) *Result {
	l := sub("batch")

	failed := func(msg string, err error) *Result {
		l.Error(msg, "err", err)
		s.stats.recordFailure("", msg+": "+err.Error())
		return &Result{Outcome: OutcomeFailed, Stats: s.stats.Snapshot(), Failures: s.stats.Failures()}
	}

	if err := EnsureDir(s.cfg.DestinationDir, 0755); err != nil {
		return failed("destination unavailable", err)
	}
	if err := EnsureDir(s.cfg.QuarantineDir, 0755); err != nil {
		return failed("quarantine unavailable", err)
	}

	journalPath := filepath.Join(s.cfg.DestinationDir, JournalName)
	if s.cfg.ResetProgress {
		if err := ResetJournal(journalPath); err != nil {
			return failed("reset progress", err)
		}
	}
	done, err := LoadJournal(journalPath, s.cfg.InputDir)
	if err != nil {
		return failed("load progress", err)
	}
	s.journal, err = OpenJournal(journalPath)
	if err != nil {
		return failed("open progress", err)
	}
	defer s.journal.Close()

	s.errlog = OpenErrorLog(s.cfg.DestinationDir)
	defer s.errlog.Close()

	if !s.cfg.NoCache {
		cache, cacheErr := OpenProposalCache(s.cfg.DestinationDir)
		if cacheErr != nil {
			// Degraded but functional: every file pays for its call.
			l.Warn("proposal cache unavailable", "err", cacheErr)
		} else {
			s.cache = cache
			defer s.cache.Close()
		}
	}

	if err := s.provider.ValidateCredentials(parent); err != nil {
		s.errlog.Logf("credential check failed for %s: %v", s.provider.Name(), err)
		return failed("credential check for "+s.provider.Name(), err)
	}
	l.Info("credentials verified", "provider", s.provider.Name(), "workers", s.cfg.WorkerCount)

	names, err := s.enumerate(done)
	if err != nil {
		return failed("list input directory", err)
	}
	l.Info("input enumerated", "eligible", len(names), "alreadyDone", len(done))

	if len(names) == 0 && !s.cfg.Watch {
		l.Info("nothing to do")
		return &Result{Outcome: OutcomeCompleted, Stats: s.stats.Snapshot()}
	}
	s.queue.PushMany(names)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var pending atomic.Int64
	pending.Store(int64(len(names)))
	var fatal atomic.Value

	g := new(errgroup.Group)
	for i := 0; i < s.cfg.WorkerCount; i++ {
		g.Go(func() error {
			for {
				name, ok := s.queue.Pop(ctx.Done())
				if !ok {
					return nil
				}
				if err := s.processFile(ctx, name); err != nil {
					if ctx.Err() == nil && Classify(err).Kind == KindAuth {
						fatal.Store(err)
						s.errlog.Logf("aborting run, credentials rejected: %v", err)
					}
					cancel()
					return nil
				}
				if !s.cfg.Watch && pending.Add(-1) == 0 {
					cancel()
					return nil
				}
			}
		})
	}

	if s.cfg.Watch {
		w, werr := NewWatcher(s.cfg.InputDir, s.queue)
		if werr != nil {
			l.Warn("watch mode unavailable", "err", werr)
		} else {
			g.Go(func() error {
				w.Run(ctx)
				return nil
			})
			defer w.Close()
		}
	}

	g.Wait() //nolint:errcheck

	res := &Result{Stats: s.stats.Snapshot(), Failures: s.stats.Failures()}
	switch {
	case fatal.Load() != nil:
		res.Outcome = OutcomeFailed
	case parent.Err() != nil:
		l.Warn("interrupted, progress journaled", "processed", res.Stats.Succeeded+res.Stats.Failed)
		res.Outcome = OutcomeInterrupted
	default:
		res.Outcome = OutcomeCompleted
	}

	snap := res.Stats
	l.Info("run finished",
		"outcome", res.Outcome,
		"total", snap.Total, "succeeded", snap.Succeeded, "failed", snap.Failed,
		"warnings", snap.Warnings, "retryEvents", snap.RecoverableRetryEvents,
		"retriesSucceeded", snap.SuccessfulRetries)
	return res
}

// Events exposes the progress bus for subscription.
func (s *Session) Events() *ProgressBus { return s.events }

// enumerate lists eligible input basenames in natural sort order,
// minus the already-journaled set. Hidden files, sync-client partials
// ("._" AppleDouble et al.) and unsupported extensions are skipped.
func (s *Session) enumerate(done map[string]struct{}) ([]string, error) {
	infos, err := afero.ReadDir(s.fsys, s.cfg.InputDir)
	if err != nil {
		return nil, err
	}

	names := lo.FilterMap(infos, func(info os.FileInfo, _ int) (string, bool) {
		name := info.Name()
		if info.IsDir() || !info.Mode().IsRegular() {
			return "", false
		}
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "._") {
			return "", false
		}
		if !SupportedExtension(name) {
			s.events.Publish(ProgressEvent{Type: EventSkipped, Name: name, Reason: "unsupported extension"})
			return "", false
		}
		if _, skip := done[name]; skip {
			s.events.Publish(ProgressEvent{Type: EventSkipped, Name: name, Reason: "already processed"})
			return "", false
		}
		return name, true
	})

	sort.Slice(names, func(i, j int) bool { return natural.Less(names[i], names[j]) })
	return names, nil
}
