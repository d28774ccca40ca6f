package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// logLevelRank maps a configured level name to a severity rank.
func logLevelRank(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return 0
	case "warn", "warning":
		return 2
	case "error":
		return 3
	default:
		return 1 // info
	}
}

// levelWriter drops log lines below a severity threshold. The stdlib
// logger has no level field, so lines are classified by content:
// anything mentioning an error ranks highest, warnings next, and a
// "debug:" prefix marks debug chatter. Unmarked lines count as info.
type levelWriter struct {
	next io.Writer
	min  int
}

// newLevelWriter wraps w so only lines at or above the configured
// level get through. The debug level passes everything unwrapped.
func newLevelWriter(w io.Writer, level string) io.Writer {
	min := logLevelRank(level)
	if min <= 0 {
		return w
	}
	return &levelWriter{next: w, min: min}
}

func (lw *levelWriter) Write(p []byte) (int, error) {
	if classifyLogLine(string(p)) >= lw.min {
		return lw.next.Write(p)
	}
	// Report the line as written so the logger never errors on a
	// suppressed message.
	return len(p), nil
}

func classifyLogLine(line string) int {
	lc := strings.ToLower(line)
	switch {
	case strings.Contains(lc, "error"),
		strings.Contains(lc, "failed"),
		strings.Contains(lc, "panic"):
		return 3
	case strings.Contains(lc, "warning"),
		strings.Contains(lc, "warn:"):
		return 2
	case strings.Contains(lc, "debug:"):
		return 0
	default:
		return 1
	}
}

// openLogFile opens the dashboard log file for appending, creating the
// parent directory when needed. An empty path falls back to
// logs/patho-console.log under the working directory.
func openLogFile(path string) (*os.File, error) {
	if path == "" {
		path = filepath.Join(getWorkingDir(), "logs", "patho-console.log")
	} else {
		path = resolvePathRelativeToBase(getWorkingDir(), path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return logFile, nil
}
