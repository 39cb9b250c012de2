package organize

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// JournalName is the well-known progress file name under the
// destination area.
const JournalName = ".progress"

// Journal is the append-only record of source basenames that reached a
// terminal outcome. One basename per line, UTF-8, LF-terminated.
// Multiple workers share one handle and serialize through an exclusive
// file lock.
type Journal struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// OpenJournal opens (or creates) the journal for appending.
func OpenJournal(path string) (*Journal, error) {
	if err := EnsureDir(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{path: path, f: f}, nil
}

// LoadJournal reads the completed set and reconciles it against the
// input directory: an entry is kept only if the named file is no
// longer present there. A file still present means a prior run wrote
// the entry but crashed before moving, so it must be re-processed.
func LoadJournal(path, inputDir string) (map[string]struct{}, error) {
	l := sub("journal")
	done := make(map[string]struct{})

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			l.Debug("no journal, fresh run", "path", path)
			return done, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var total, stale int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name == "" {
			continue
		}
		total++
		if _, err := os.Stat(filepath.Join(inputDir, name)); err == nil {
			// Still in the input dir: the move never happened.
			stale++
			continue
		}
		done[name] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	l.Info("journal loaded", "entries", total, "completed", len(done), "stale", stale)
	return done, nil
}

// ResetJournal deletes the journal file.
func ResetJournal(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset journal: %w", err)
	}
	sub("journal").Info("journal reset", "path", path)
	return nil
}

// Record appends one basename. It takes the exclusive lock, writes the
// line, flushes and releases. Callers invoke it only after the physical
// move completed.
func (j *Journal) Record(basename string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	lock, err := acquireLock(j.path+".lock", 30*time.Second)
	if err != nil {
		return err
	}
	defer lock.release()

	if _, err := j.f.WriteString(basename + "\n"); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	if err := j.f.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	if logEnabled(slog.LevelDebug) {
		sub("journal").Debug("recorded", "name", basename)
	}
	return nil
}

// Close closes the journal handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}
