package organize

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ErrorLog appends one timestamped, redacted line per failure event to
// errors.log under the destination area.
type ErrorLog struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// OpenErrorLog creates (or reopens) the error log in dir.
func OpenErrorLog(dir string) *ErrorLog {
	return &ErrorLog{
		w: &lumberjack.Logger{
			Filename:   filepath.Join(dir, "errors.log"),
			MaxSize:    10,
			MaxBackups: 2,
		},
	}
}

// Logf writes one "YYYY-MM-DD HH:MM:SS: message" line. API-key-shaped
// substrings are redacted before the line reaches disk.
func (e *ErrorLog) Logf(format string, args ...any) {
	if e == nil {
		return
	}
	msg := Redact(fmt.Sprintf(format, args...))
	line := fmt.Sprintf("%s: %s\n", nowFunc().Format("2006-01-02 15:04:05"), msg)
	e.mu.Lock()
	e.w.Write([]byte(line)) //nolint:errcheck
	e.mu.Unlock()
}

// Close closes the underlying log file.
func (e *ErrorLog) Close() error {
	if e == nil {
		return nil
	}
	return e.w.Close()
}
