package logger

import (
	"sync"
	"time"
)

// Entry is one line of a bounded log.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Ring is a fixed-capacity log buffer. Each worker owns one; the API layer
// and snapshots read it through Entries, which always returns a copy in
// chronological order. Oldest entries are overwritten once full.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 200
	}
	return &Ring{entries: make([]Entry, capacity)}
}

func (r *Ring) Add(level, message string) {
	r.mu.Lock()
	r.entries[r.next] = Entry{Time: time.Now(), Level: level, Message: message}
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// Entries returns up to limit most recent entries, oldest first. limit <= 0
// returns everything retained.
func (r *Ring) Entries(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Entry
	if r.full {
		out = make([]Entry, 0, len(r.entries))
		out = append(out, r.entries[r.next:]...)
		out = append(out, r.entries[:r.next]...)
	} else {
		out = make([]Entry, r.next)
		copy(out, r.entries[:r.next])
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}
