package logger

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// RingBuffer is a bounded in-memory capture of recent log lines, attached as a
// logrus hook. It is read at failure time so error notifications carry the
// log tail of the pass that produced them.
type RingBuffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewRingBuffer creates a ring buffer holding up to size lines.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 100
	}
	return &RingBuffer{lines: make([]string, size)}
}

// Levels implements logrus.Hook.
func (r *RingBuffer) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (r *RingBuffer) Fire(entry *logrus.Entry) error {
	line := fmt.Sprintf("%s %s %s",
		entry.Time.Format("2006-01-02 15:04:05"),
		entry.Level.String(),
		entry.Message,
	)
	for k, v := range entry.Data {
		line += fmt.Sprintf(" %s=%v", k, v)
	}

	r.mu.Lock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()

	return nil
}

// Lines returns the captured lines, oldest first.
func (r *RingBuffer) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	if r.full {
		out = append(out, r.lines[r.next:]...)
	}
	out = append(out, r.lines[:r.next]...)
	return out
}

// Reset clears the buffer, typically at the start of a pass.
func (r *RingBuffer) Reset() {
	r.mu.Lock()
	for i := range r.lines {
		r.lines[i] = ""
	}
	r.next = 0
	r.full = false
	r.mu.Unlock()
}
