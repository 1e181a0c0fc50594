// Package history holds the process-wide record of recent publish
// attempts. The cycle controller is the only writer; readers get copies.
package history

import (
	"sync"
	"time"

	"github.com/deusflow/worldnews/internal/publish"
)

const DefaultCapacity = 20

// Log is a bounded ring buffer of attempts, oldest evicted first.
type Log struct {
	mu       sync.RWMutex
	capacity int
	items    []publish.Attempt
	start    int
	lastRun  time.Time
	total    int
}

func New(capacity int) *Log {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity, items: make([]publish.Attempt, 0, capacity)}
}

// Append stores finished attempts. Each is copied.
func (l *Log) Append(attempts ...*publish.Attempt) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, a := range attempts {
		if a == nil {
			continue
		}
		cp := *a
		cp.Trace = append([]publish.State(nil), a.Trace...)
		l.total++
		if len(l.items) < l.capacity {
			l.items = append(l.items, cp)
			continue
		}
		l.items[l.start] = cp
		l.start = (l.start + 1) % l.capacity
	}
}

// Recent returns up to n attempts, newest first. n <= 0 returns all.
func (l *Log) Recent(n int) []publish.Attempt {
	l.mu.RLock()
	defer l.mu.RUnlock()

	size := len(l.items)
	if n <= 0 || n > size {
		n = size
	}
	out := make([]publish.Attempt, 0, n)
	for i := range n {
		idx := (l.start + size - 1 - i) % size
		a := l.items[idx]
		a.Trace = append([]publish.State(nil), a.Trace...)
		out = append(out, a)
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Total counts every attempt ever appended, evicted ones included.
func (l *Log) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

func (l *Log) SetLastRun(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastRun = t
}

// LastRun is zero until the first cycle finishes.
func (l *Log) LastRun() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastRun
}
