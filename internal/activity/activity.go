// Package activity writes tool-call activity to a markdown file for
// debugging. Thread-safe; disabled entirely when no path is configured.
package activity

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Logger appends one markdown section per tool call.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	path string

	now func() time.Time // test hook
}

// New creates a logger appending to path. An empty path returns a nil
// Logger, on which every method is a no-op.
func New(path string) (*Logger, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open activity log: %w", err)
	}
	l := &Logger{file: f, path: path, now: time.Now}
	l.writef("# Tool Activity Log\n\n**Started**: %s\n\n---\n\n", l.now().Format("2006-01-02 15:04:05"))
	return l, nil
}

// Call records one completed tool call.
func (l *Logger) Call(tool, model, status string, elapsed time.Duration) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writef("## %s — %s\n\n", l.now().Format("15:04:05"), tool)
	if model != "" {
		l.writef("**Model**: `%s`  \n", model)
	}
	l.writef("**Status**: %s  \n**Elapsed**: %s\n\n---\n\n", status, elapsed.Round(time.Millisecond))
}

// Close closes the underlying file. Safe on nil.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) writef(format string, args ...interface{}) {
	fmt.Fprintf(l.file, format, args...)
}
