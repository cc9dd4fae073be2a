// Package eventlog keeps the recent, timestamped activity lines of one
// session and forwards every new line to a sink for live fan-out.
package eventlog

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of lines retained for replay to observers
// that join late.
const DefaultCapacity = 50

// StampLayout renders the local wall-clock time in front of each line.
const StampLayout = "3:04:05 PM"

// Log is a bounded FIFO of stamped lines. When full, appending evicts the
// oldest line. The sink is invoked for every appended line, in append
// order, while the log's lock is held.
//
// All methods are safe for concurrent use.
type Log struct {
	mu    sync.Mutex
	lines []string
	start int // index of the oldest line in lines
	count int
	now   func() time.Time
	sink  func(line string)
}

// New creates a log holding at most capacity lines. now supplies the stamp
// time; sink may be nil.
func New(capacity int, now func() time.Time, sink func(line string)) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Log{
		lines: make([]string, capacity),
		now:   now,
		sink:  sink,
	}
}

// Stamp formats message the way every stored line is formatted.
func Stamp(t time.Time, message string) string {
	return "[" + t.Format(StampLayout) + "] " + message
}

// Append stamps message with the current time, stores it and publishes it
// to the sink. It returns the stamped line.
func (l *Log) Append(message string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := Stamp(l.now(), message)
	capacity := len(l.lines)
	if l.count < capacity {
		l.lines[(l.start+l.count)%capacity] = line
		l.count++
	} else {
		l.lines[l.start] = line
		l.start = (l.start + 1) % capacity
	}

	if l.sink != nil {
		l.sink(line)
	}
	return line
}

// Replay returns the retained lines, oldest first. The returned slice is a
// copy.
func (l *Log) Replay() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, l.count)
	capacity := len(l.lines)
	for i := 0; i < l.count; i++ {
		out[i] = l.lines[(l.start+i)%capacity]
	}
	return out
}

// Len returns the number of retained lines.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Capacity returns the maximum number of retained lines.
func (l *Log) Capacity() int {
	return len(l.lines)
}
