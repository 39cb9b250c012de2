package organize

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"
)

const maxFilenameLen = 160

// Sanitize turns a raw LLM proposal into a filesystem-safe name:
// NFKD normalization, ASCII strip, then only [A-Za-z0-9_] survives.
// Empty results fall back to a timestamped placeholder. Idempotent.
func Sanitize(proposal string) string {
	trimmed := strings.TrimSpace(proposal)

	decomposed := norm.NFKD.String(trimmed)
	var b strings.Builder
	for _, r := range decomposed {
		if r > unicode.MaxASCII {
			continue
		}
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			b.WriteRune(r)
		}
	}

	name := b.String()
	if name == "" {
		if trimmed == "" {
			return "empty_file_" + timestamp()
		}
		return "invalid_name_" + timestamp()
	}

	if len(name) > maxFilenameLen {
		name = name[:maxFilenameLen]
	}
	return name
}

// ResolveConflict picks a name that does not collide with an existing
// file in dir. Probes name, name_1 .. name_1000, then falls back to a
// Unix-epoch suffix. The final rename is the authoritative arbiter
// under concurrent workers; callers re-enter on rename conflict.
func ResolveConflict(fsys afero.Fs, dir, name, ext string) string {
	if !exists(fsys, filepath.Join(dir, name+ext)) {
		return name
	}

	for i := 1; i <= 1000; i++ {
		suffix := fmt.Sprintf("_%d", i)
		candidate := name + suffix
		if len(candidate) > maxFilenameLen {
			candidate = name[:maxFilenameLen-len(suffix)] + suffix
		}
		if !exists(fsys, filepath.Join(dir, candidate+ext)) {
			return candidate
		}
	}

	// 1000 collisions: disambiguate with the epoch.
	epoch := fmt.Sprintf("_%d", nowFunc().Unix())
	candidate := name
	if len(candidate)+len(epoch) > maxFilenameLen {
		candidate = candidate[:maxFilenameLen-len(epoch)]
	}
	return candidate + epoch
}

func exists(fsys afero.Fs, path string) bool {
	_, err := fsys.Stat(path)
	return err == nil
}
