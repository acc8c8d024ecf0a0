// Package ledger keeps a bounded, append-only in-memory record of every
// command attempt and its outcome.
package ledger

import (
	"math"
	"sync"
	"time"

	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/model"
)

// EntryStatus is the recorded outcome of one command attempt.
type EntryStatus string

const (
	StatusSuccess EntryStatus = "success"
	StatusFailed  EntryStatus = "failed"
	StatusPending EntryStatus = "pending"
	StatusBlocked EntryStatus = "blocked"
)

// Entry is one ledger record. Entries are never mutated after Append.
type Entry struct {
	ID        int          `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Action    string       `json:"action"`
	Target    string       `json:"target,omitempty"`
	Source    model.Source `json:"source"`
	Status    EntryStatus  `json:"status"`
	Details   string       `json:"details,omitempty"`
}

// Stats aggregates ledger counts. SuccessRate is a whole percent and
// defaults to 100 for an empty ledger.
type Stats struct {
	Total       int `json:"total"`
	Successful  int `json:"successful"`
	Failed      int `json:"failed"`
	SuccessRate int `json:"success_rate"`
}

// Ledger is a fixed-capacity FIFO log. Oldest entries are evicted first.
type Ledger struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	nextID   int
}

func New(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Ledger{capacity: capacity, nextID: 1}
}

// Append records a command attempt and returns the stored entry.
func (l *Ledger) Append(action, target string, source model.Source, status EntryStatus, details string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		ID:        l.nextID,
		Timestamp: time.Now(),
		Action:    action,
		Target:    target,
		Source:    source,
		Status:    status,
		Details:   details,
	}
	l.nextID++

	l.entries = append(l.entries, e)
	if len(l.entries) > l.capacity {
		// FIFO eviction: drop the oldest.
		over := len(l.entries) - l.capacity
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
	return e
}

// Recent returns up to n entries, newest last.
func (l *Ledger) Recent(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Entry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// ByAction returns all entries for the given action, oldest first.
func (l *Ledger) ByAction(action string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for _, e := range l.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// Failures returns all failed entries, oldest first.
func (l *Ledger) Failures() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for _, e := range l.entries {
		if e.Status == StatusFailed {
			out = append(out, e)
		}
	}
	return out
}

// Stats aggregates counts over the retained window.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{Total: len(l.entries), SuccessRate: 100}
	for _, e := range l.entries {
		switch e.Status {
		case StatusSuccess:
			s.Successful++
		case StatusFailed:
			s.Failed++
		}
	}
	if s.Total > 0 {
		s.SuccessRate = int(math.Round(float64(s.Successful) / float64(s.Total) * 100))
	}
	return s
}

// Len returns the number of retained entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
