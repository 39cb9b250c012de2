package organize

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noJitter(t *testing.T) {
	t.Helper()
	prev := retryJitter
	retryJitter = func(d time.Duration) time.Duration { return 0 }
	t.Cleanup(func() { retryJitter = prev })
}

func TestClassify_TaggedKindWins(t *testing.T) {
	// The message alone would classify as network; the tag overrides.
	err := withKind(KindEncrypted, errors.New("connection to decryption service timed out"))
	c := Classify(err)
	assert.Equal(t, KindEncrypted, c.Kind)
	assert.False(t, c.Recoverable)
}

func TestClassify_Errno(t *testing.T) {
	c := Classify(fmt.Errorf("rename: %w", syscall.EACCES))
	assert.Equal(t, KindRecoverablePermission, c.Kind)
	assert.Equal(t, 2*time.Second, c.Backoff)

	c = Classify(fmt.Errorf("open: %w", syscall.EBUSY))
	assert.Equal(t, KindFileLocked, c.Kind)
	assert.Equal(t, 1500*time.Millisecond, c.Backoff)
}

func TestClassify_Substrings(t *testing.T) {
	cases := []struct {
		msg     string
		kind    Kind
		backoff time.Duration
	}{
		{"permission denied while opening", KindRecoverablePermission, 2 * time.Second},
		{"the file is being used by another process", KindFileLocked, 1500 * time.Millisecond},
		{"OneDrive conflicted copy detected", KindSyncConflict, 3 * time.Second},
		{"dial tcp: connection refused", KindNetwork, 5 * time.Second},
		{"unsupported image codec", KindUnsupportedFormat, 0},
		{"429 too many requests", KindRateLimit, 5 * time.Second},
		{"503 service unavailable", KindServerError, 5 * time.Second},
	}
	for _, tc := range cases {
		c := Classify(errors.New(tc.msg))
		assert.Equal(t, tc.kind, c.Kind, tc.msg)
		assert.Equal(t, tc.backoff, c.Backoff, tc.msg)
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	// "permission denied" appears before the network rule even though
	// the message also mentions a connection.
	c := Classify(errors.New("permission denied on connection socket"))
	assert.Equal(t, KindRecoverablePermission, c.Kind)
}

func TestClassify_UnknownIsPermanent(t *testing.T) {
	c := Classify(errors.New("something entirely novel went wrong"))
	assert.Equal(t, KindPermanent, c.Kind)
	assert.False(t, c.Recoverable)
	assert.False(t, c.RetryRecommended)
}

func TestClassify_EveryKindHasVerdict(t *testing.T) {
	for k := KindRecoverablePermission; k <= KindPermanent; k++ {
		c := classifyKind(k)
		assert.Equal(t, c.Backoff > 0, c.Recoverable, k.String())
		assert.NotEmpty(t, c.UserMessage, k.String())
		// Recoverable and RetryRecommended always agree.
		assert.Equal(t, c.Recoverable, c.RetryRecommended, k.String())
	}
}

func TestExecuteWithRetry_SucceedsFirstTry(t *testing.T) {
	stats := NewStats()
	calls := 0
	err := ExecuteWithRetry(context.Background(), stats, "a.pdf", 3, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Zero(t, stats.Snapshot().RecoverableRetryEvents)
}

func TestExecuteWithRetry_RecoversAndCounts(t *testing.T) {
	noJitter(t)
	stats := NewStats()
	calls := 0
	err := ExecuteWithRetry(context.Background(), stats, "a.pdf", 3, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return withKind(KindFileLocked, errors.New("locked"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	snap := stats.Snapshot()
	assert.Equal(t, int64(2), snap.RecoverableRetryEvents)
	assert.Equal(t, int64(1), snap.SuccessfulRetries)
	assert.Equal(t, int64(1), snap.UniqueFilesWithRecoverableIssues)
}

func TestExecuteWithRetry_PermanentFailsFast(t *testing.T) {
	stats := NewStats()
	calls := 0
	permanent := errors.New("totally broken")
	err := ExecuteWithRetry(context.Background(), stats, "a.pdf", 5, func(ctx context.Context) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestExecuteWithRetry_ExhaustsAttempts(t *testing.T) {
	noJitter(t)
	stats := NewStats()
	calls := 0
	locked := withKind(KindFileLocked, errors.New("locked"))
	err := ExecuteWithRetry(context.Background(), stats, "a.pdf", 3, func(ctx context.Context) error {
		calls++
		return locked
	})
	assert.ErrorIs(t, err, locked)
	assert.Equal(t, 3, calls)
	// Two retries happened; the exhausted third attempt is not one.
	assert.Equal(t, int64(2), stats.Snapshot().RecoverableRetryEvents)
}

func TestExecuteWithRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ExecuteWithRetry(ctx, nil, "a.pdf", 3, func(ctx context.Context) error {
		t.Fatal("op should not run on a dead context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteWithRetry_NilStats(t *testing.T) {
	noJitter(t)
	calls := 0
	err := ExecuteWithRetry(context.Background(), nil, "a.pdf", 2, func(ctx context.Context) error {
		calls++
		return withKind(KindNetwork, errors.New("down"))
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}
