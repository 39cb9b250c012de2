package organize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

const copyChunkSize = 256 * 1024 // 256KB per chunk

const (
	moveAttempts  = 3
	moveBaseDelay = 500 * time.Millisecond
)

// EnsureDir creates path (and parents) with the given mode.
func EnsureDir(path string, mode os.FileMode) error {
	if err := os.MkdirAll(path, mode); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// Move places src at dst without ever losing data:
//  1. validate src exists and dst's parent is writable (creating it)
//  2. in-place rename
//  3. on transient failure, back off delay·(attempt+1) and retry
//  4. fall back to copy-then-delete (normal path across devices)
//
// The destination is never overwritten; callers resolve conflicts first
// and re-enter when the rename loses a race.
func Move(ctx context.Context, src, dst string) error {
	l := sub("fileops")

	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return kindErrorf(KindPermanent, "move: source gone: %s", src)
		}
		return fmt.Errorf("stat src: %w", err)
	}
	if err := EnsureDir(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	var renameErr error
	for attempt := 0; attempt < moveAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		renameErr = os.Rename(src, dst)
		if renameErr == nil {
			l.Debug("rename ok", "src", src, "dst", dst)
			return nil
		}
		if isCrossDevice(renameErr) {
			// Different filesystems; go straight to copy-then-delete.
			l.Debug("cross-device rename, copying", "src", src, "dst", dst)
			break
		}
		if !isTransient(renameErr) {
			break
		}

		wait := moveBaseDelay * time.Duration(attempt+1)
		l.Warn("rename failed, retrying", "src", src, "attempt", attempt+1, "wait", wait, "err", renameErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	if err := copyThenDelete(ctx, src, dst); err != nil {
		// Surface the most meaningful error.
		if renameErr != nil && !isCrossDevice(renameErr) {
			return classifyMoveErr(renameErr)
		}
		return err
	}
	return nil
}

// Copy duplicates src at dst preserving mode and mtime.
func Copy(ctx context.Context, src, dst string) error {
	if err := EnsureDir(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	tmp, err := copyToTemp(ctx, src, dst)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename tmp to dst: %w", err)
	}
	return nil
}

// Delete removes path. Missing files are a no-op.
func Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// copyThenDelete is the rename fallback: chunked copy to a temp name in
// dst's directory, fsync, rename to final, then unlink src. If the
// unlink fails the copy is kept and the error surfaced.
func copyThenDelete(ctx context.Context, src, dst string) error {
	tmp, err := copyToTemp(ctx, src, dst)
	if err != nil {
		return err
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename tmp to dst: %w", err)
	}

	if err := os.Remove(src); err != nil {
		return classifyMoveErr(fmt.Errorf("unlink src after copy: %w", err))
	}
	sub("fileops").Debug("copy-then-delete ok", "src", src, "dst", dst)
	return nil
}

// copyToTemp copies src to dst's directory under a temp name,
// preserving metadata and fsyncing before return. The temp file is
// removed on every error path.
func copyToTemp(ctx context.Context, src, dst string) (string, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("stat src: %w", err)
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return "", classifyMoveErr(fmt.Errorf("open src: %w", err))
	}
	defer srcFile.Close()

	tmpPath := fmt.Sprintf("%s.tmp.%d", dst, os.Getpid())
	tmpFile, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return "", fmt.Errorf("create tmp: %w", err)
	}

	buf := make([]byte, copyChunkSize)
	var copyErr error
	for {
		select {
		case <-ctx.Done():
			copyErr = ctx.Err()
		default:
		}
		if copyErr != nil {
			break
		}

		n, readErr := srcFile.Read(buf)
		if n > 0 {
			if _, writeErr := tmpFile.Write(buf[:n]); writeErr != nil {
				copyErr = fmt.Errorf("write tmp: %w", writeErr)
				break
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			copyErr = fmt.Errorf("read src: %w", readErr)
			break
		}
	}

	if copyErr == nil {
		copyErr = tmpFile.Sync()
	}
	tmpFile.Close()

	if copyErr != nil {
		os.Remove(tmpPath)
		return "", copyErr
	}

	// Preserve source mtime on the copy.
	if err := os.Chtimes(tmpPath, time.Now(), srcInfo.ModTime()); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("chtimes tmp: %w", err)
	}
	return tmpPath, nil
}

// AtomicWrite writes data to path via path.tmp.<pid>, fsyncs, then
// renames over the target. Windows cannot rename-over, so the target is
// unlinked first there. The temp file is removed on any error.
func AtomicWrite(path string, data []byte) error {
	tmpPath := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create tmp: %w", err)
	}

	_, werr := f.Write(data)
	if werr == nil {
		werr = f.Sync()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write tmp: %w", werr)
	}

	if runtime.GOOS == "windows" {
		// Accept a momentary gap; rename-over is not supported.
		os.Remove(path) //nolint:errcheck
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename tmp: %w", err)
	}
	return nil
}

// isTransient reports whether a rename failure is worth retrying in
// place: permission and sharing errors that antivirus or sync clients
// cause and release shortly after.
func isTransient(err error) bool {
	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.EPERM) {
		return true
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "sharing violation") ||
		strings.Contains(text, "being used by another process")
}

func isCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}

// classifyMoveErr tags permission failures so the retry layer treats
// them as recoverable after the in-place retries are exhausted.
func classifyMoveErr(err error) error {
	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
		return withKind(KindRecoverablePermission, err)
	}
	if errors.Is(err, syscall.EBUSY) {
		return withKind(KindFileLocked, err)
	}
	return err
}
