package organize

import (
	"context"
	"path/filepath"
	"strings"
)

// processFile runs one source basename through extract → propose →
// place. Per-file failures are absorbed into stats, the error log, and
// quarantine; a non-nil return is session-fatal (auth rejection or
// context cancellation).
func (s *Session) processFile(ctx context.Context, base string) error {
	l := sub("pipeline")
	s.stats.recordTotal()
	s.events.Publish(ProgressEvent{Type: EventStarted, Name: base})

	srcPath := filepath.Join(s.cfg.InputDir, base)
	ext := strings.ToLower(filepath.Ext(base))

	s.events.Publish(ProgressEvent{Type: EventStatusChanged, Name: base, Status: "extracting"})
	content, extractErr := s.extractor.Extract(ctx, srcPath)
	if extractErr != nil && (content == nil || content.Quality == QualityFailed) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return s.quarantine(ctx, base, srcPath, extractErr)
	}

	var name string
	if content.Empty() {
		// Valid but blank document: place it with a placeholder, never
		// spend a provider call on it.
		name = "empty_file_" + timestamp()
		s.stats.recordWarning()
		l.Info("no extractable content, using placeholder", "file", base)
	} else {
		s.events.Publish(ProgressEvent{Type: EventStatusChanged, Name: base, Status: "proposing"})
		proposed, err := s.propose(ctx, base, content)
		switch {
		case err == nil:
			name = proposed
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			c := Classify(err)
			switch c.Kind {
			case KindAuth:
				// Every later file would fail identically.
				return err
			case KindNetwork, KindRateLimit, KindServerError:
				name = "network_error_" + timestamp()
				s.stats.recordWarning()
				s.errlog.Logf("%s: %s after retries: %v", base, c.UserMessage, err)
				l.Warn("provider unreachable, using placeholder",
					"file", base, "kind", c.Kind.String(), "err", Redact(err.Error()))
			default:
				name = "untitled_document_" + timestamp()
				s.stats.recordWarning()
				s.errlog.Logf("%s: %s: %v", base, c.UserMessage, err)
				l.Warn("proposal failed, using placeholder",
					"file", base, "kind", c.Kind.String(), "err", Redact(err.Error()))
			}
		}
	}

	s.events.Publish(ProgressEvent{Type: EventStatusChanged, Name: base, Status: "placing"})
	finalName, err := s.place(ctx, srcPath, s.cfg.DestinationDir, Sanitize(name), ext)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if !Classify(err).Recoverable {
			// The destination rejects this file outright; quarantine can
			// still succeed (different directory, different failure mode).
			return s.quarantine(ctx, base, srcPath, err)
		}
		// Transient condition that outlasted the retries: the file stays
		// in the input dir and is retried next run.
		s.stats.recordFailure(base, err.Error())
		s.errlog.Logf("%s: move failed: %v", base, err)
		s.events.Publish(ProgressEvent{Type: EventFailed, Name: base, Reason: "move", Err: Redact(err.Error())})
		return nil
	}

	// Journal only after the move is physically complete.
	if err := s.journal.Record(base); err != nil {
		l.Warn("journal append failed", "file", base, "err", err)
	}
	s.stats.recordSuccess()
	s.events.Publish(ProgressEvent{Type: EventSucceeded, Name: base, FinalName: finalName})
	l.Info("placed", "file", base, "as", finalName, "quality", content.Quality.String())
	return nil
}

// propose asks the provider for a filename, going through the proposal
// cache and the retry layer. Provider calls are capped by the session
// semaphore and bounded by the request timeout individually.
func (s *Session) propose(ctx context.Context, base string, content *ExtractedContent) (string, error) {
	text := TruncateToBudget(content.Text, s.cfg.Model, s.cfg.TokenBudget)

	var key uint64
	if s.cache != nil {
		key = cacheKey(s.provider.Name(), s.cfg.Model, text)
		if name := s.cache.Get(key); name != "" {
			sub("pipeline").Debug("proposal cache hit", "file", base)
			return name, nil
		}
	}

	image := content.PageImage
	if !s.provider.SupportsVision() {
		image = nil
	}

	var name string
	err := ExecuteWithRetry(ctx, s.stats, base, s.cfg.MaxAttempts, func(ctx context.Context) error {
		if err := s.limiter.Acquire(ctx, 1); err != nil {
			return err
		}
		defer s.limiter.Release(1)

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()

		proposed, err := s.provider.ProposeFilename(callCtx, text, image)
		if err != nil {
			return err
		}
		name = proposed
		return nil
	})
	if err != nil {
		return "", err
	}

	s.cache.Put(key, name)
	return name, nil
}

// place resolves a collision-free name in dir and moves src there.
// Resolution and move are serialized across workers so two files
// cannot claim the same name.
func (s *Session) place(ctx context.Context, srcPath, dir, name, ext string) (string, error) {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()

	resolved := ResolveConflict(s.fsys, dir, name, ext)
	dst := filepath.Join(dir, resolved+ext)

	err := ExecuteWithRetry(ctx, s.stats, filepath.Base(srcPath), s.cfg.MaxAttempts, func(ctx context.Context) error {
		return Move(ctx, srcPath, dst)
	})
	if err != nil {
		return "", err
	}
	return resolved + ext, nil
}

// quarantine moves an unprocessable file aside under its original
// basename. When even that move fails, the file is left in place.
func (s *Session) quarantine(ctx context.Context, base, srcPath string, cause error) error {
	c := Classify(cause)
	s.errlog.Logf("%s: %s: %v", base, c.UserMessage, cause)
	sub("pipeline").Warn("quarantining",
		"file", base, "kind", c.Kind.String(), "err", Redact(cause.Error()))

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	finalName, err := s.place(ctx, srcPath, s.cfg.QuarantineDir, stem, ext)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		s.stats.recordFailure(base, cause.Error()+" (quarantine move also failed: "+err.Error()+")")
		s.events.Publish(ProgressEvent{Type: EventFailed, Name: base, Reason: c.Kind.String(), Err: Redact(cause.Error())})
		return nil
	}

	if err := s.journal.Record(base); err != nil {
		sub("pipeline").Warn("journal append failed", "file", base, "err", err)
	}
	s.stats.recordFailure(base, c.UserMessage)
	s.events.Publish(ProgressEvent{
		Type: EventFailed, Name: base, FinalName: finalName,
		Reason: c.Kind.String(), Err: Redact(cause.Error()),
	})
	return nil
}
