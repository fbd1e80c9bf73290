package tui

import (
	"strings"
	"sync"
)

// Log collects the notifications printed by the viewer so the picker can
// show them below the list. It keeps the last Size lines.
type Log struct {
	mu      sync.Mutex
	lines   []string
	partial string

	Size int
}

// NewLog creates a log keeping the last size lines
func NewLog(size int) *Log {
	return &Log{Size: size}
}

// Write implements io.Writer
func (l *Log) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	text := l.partial + string(p)
	parts := strings.Split(text, "\n")
	l.partial = parts[len(parts)-1]
	l.lines = append(l.lines, parts[:len(parts)-1]...)
	if l.Size > 0 && len(l.lines) > l.Size {
		l.lines = l.lines[len(l.lines)-l.Size:]
	}
	return len(p), nil
}

// Lines returns the complete lines written so far
func (l *Log) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}
