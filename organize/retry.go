package organize

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"syscall"
	"time"
)

// Kind is the error taxonomy. The classifier is the single authority:
// the extractor and providers tag errors where the kind is already
// known, and string matching is the last-resort fallback.
type Kind int

const (
	KindRecoverablePermission Kind = iota
	KindFileLocked
	KindSyncConflict
	KindNetwork
	KindRateLimit
	KindServerError
	KindUnsupportedFormat
	KindEncrypted
	KindAuth
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindRecoverablePermission:
		return "recoverable_permission"
	case KindFileLocked:
		return "file_locked"
	case KindSyncConflict:
		return "sync_conflict"
	case KindNetwork:
		return "network"
	case KindRateLimit:
		return "rate_limit"
	case KindServerError:
		return "server_error"
	case KindUnsupportedFormat:
		return "unsupported_format"
	case KindEncrypted:
		return "encrypted"
	case KindAuth:
		return "auth"
	default:
		return "permanent"
	}
}

// kindError tags an error with an already-known kind so the classifier
// does not have to fall back to string matching.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// withKind wraps err with a known kind. Returns nil for a nil err.
func withKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// kindErrorf builds a new tagged error.
func kindErrorf(kind Kind, format string, args ...any) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, args...)}
}

// Classification is the verdict on one error.
type Classification struct {
	Kind             Kind
	Recoverable      bool
	Backoff          time.Duration
	UserMessage      string
	RetryRecommended bool
}

func verdict(kind Kind, backoff time.Duration, msg string) Classification {
	recoverable := backoff > 0
	return Classification{
		Kind:             kind,
		Recoverable:      recoverable,
		Backoff:          backoff,
		UserMessage:      msg,
		RetryRecommended: recoverable,
	}
}

// Classify maps any error to its kind with a suggested backoff.
// First match wins: tagged kind, then errno, then case-insensitive
// substrings.
func Classify(err error) Classification {
	var ke *kindError
	if errors.As(err, &ke) {
		return classifyKind(ke.kind)
	}

	if errors.Is(err, syscall.EACCES) {
		return verdict(KindRecoverablePermission, 2*time.Second,
			"file temporarily inaccessible (antivirus or sync client may be holding it)")
	}
	if errors.Is(err, syscall.EBUSY) {
		return verdict(KindFileLocked, 1500*time.Millisecond,
			"file is in use by another process")
	}

	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "permission denied"):
		return verdict(KindRecoverablePermission, 2*time.Second,
			"file temporarily inaccessible (antivirus or sync client may be holding it)")
	case strings.Contains(text, "file is being used") || strings.Contains(text, "locked"):
		return verdict(KindFileLocked, 1500*time.Millisecond,
			"file is in use by another process")
	case strings.Contains(text, "onedrive") || strings.Contains(text, "dropbox") ||
		strings.Contains(text, "sync") || strings.Contains(text, "conflicted copy"):
		return verdict(KindSyncConflict, 3*time.Second,
			"cloud sync conflict, waiting for the sync client to settle")
	case strings.Contains(text, "timeout") || strings.Contains(text, "timed out") ||
		strings.Contains(text, "connection") || strings.Contains(text, "network") ||
		strings.Contains(text, "unreachable"):
		return verdict(KindNetwork, 5*time.Second, "network problem reaching the provider")
	case strings.Contains(text, "unsupported") || strings.Contains(text, "invalid format") ||
		strings.Contains(text, "corrupted") || strings.Contains(text, "not a valid"):
		return verdict(KindUnsupportedFormat, 0, "file format is unsupported or corrupt")
	case strings.Contains(text, "rate limit") || strings.Contains(text, "429") ||
		strings.Contains(text, "throttle") || strings.Contains(text, "quota"):
		return verdict(KindRateLimit, 5*time.Second, "provider rate limit hit")
	case strings.Contains(text, "500") || strings.Contains(text, "502") ||
		strings.Contains(text, "503") || strings.Contains(text, "504") ||
		strings.Contains(text, "server error") || strings.Contains(text, "service unavailable"):
		return verdict(KindServerError, 5*time.Second, "provider server error")
	}
	return verdict(KindPermanent, 0, "unrecoverable error")
}

func classifyKind(kind Kind) Classification {
	switch kind {
	case KindRecoverablePermission:
		return verdict(kind, 2*time.Second,
			"file temporarily inaccessible (antivirus or sync client may be holding it)")
	case KindFileLocked:
		return verdict(kind, 1500*time.Millisecond, "file is in use by another process")
	case KindSyncConflict:
		return verdict(kind, 3*time.Second, "cloud sync conflict, waiting for the sync client to settle")
	case KindNetwork:
		return verdict(kind, 5*time.Second, "network problem reaching the provider")
	case KindRateLimit:
		return verdict(kind, 5*time.Second, "provider rate limit hit")
	case KindServerError:
		return verdict(kind, 5*time.Second, "provider server error")
	case KindUnsupportedFormat:
		return verdict(kind, 0, "file format is unsupported or corrupt")
	case KindEncrypted:
		return verdict(kind, 0, "file is password protected")
	case KindAuth:
		return verdict(kind, 0, "provider credentials rejected")
	default:
		return verdict(KindPermanent, 0, "unrecoverable error")
	}
}

// retryJitter adds up to 10% random jitter on top of a backoff.
// Replaceable in tests to keep sleeps deterministic.
var retryJitter = func(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int63n(int64(d)/10+1))
}

// ExecuteWithRetry runs op up to maxAttempts times, sleeping
// backoff·2^(attempt-1) between recoverable failures. filename scopes
// the per-file accounting in stats; a nil stats skips accounting.
func ExecuteWithRetry(ctx context.Context, stats *Stats, filename string, maxAttempts int, op func(context.Context) error) error {
	l := sub("retry")
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				stats.recordSuccessfulRetry()
				l.Info("retry succeeded", "file", filename, "attempt", attempt)
			}
			return nil
		}
		lastErr = err

		c := Classify(err)
		if !c.Recoverable || !c.RetryRecommended {
			l.Debug("not retryable", "file", filename, "kind", c.Kind.String(), "err", Redact(err.Error()))
			return err
		}

		if attempt == maxAttempts {
			break
		}
		// Counted here so the tally is retries performed, not failed
		// attempts: the exhausted final attempt is not a retry event.
		stats.recordRecoverableEvent(filename)

		wait := retryJitter(c.Backoff * (1 << (attempt - 1)))
		l.Warn("recoverable error, backing off",
			"file", filename, "kind", c.Kind.String(), "attempt", attempt,
			"wait", wait, "err", Redact(err.Error()))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}
