// Package tracker keeps the last observed status of every target and detects
// up/down transitions.
package tracker

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hazz-dev/upnotif/internal/checker"
)

// Record is the last known state of a target. LastStatus is nil until the
// target has been observed once.
type Record struct {
	Target        checker.Target
	LastStatus    *checker.Status
	LastCheckedAt time.Time
}

// Transition is a change in a target's status. Previous is nil on the first
// observation.
type Transition struct {
	ID       string
	Target   checker.Target
	Previous *checker.Status
	Current  checker.Status
	At       time.Time
}

// Tracker owns the status records of all targets.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{records: make(map[string]*Record)}
}

// Update records a new classification for target at now. It returns the
// transition if the status differs from the previous one, or nil otherwise.
func (t *Tracker) Update(target checker.Target, status checker.Status, now time.Time) *Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[target.URL]
	if !ok {
		rec = &Record{Target: target}
		t.records[target.URL] = rec
		t.order = append(t.order, target.URL)
	}

	rec.LastCheckedAt = now
	if rec.LastStatus != nil && *rec.LastStatus == status {
		return nil
	}

	tr := &Transition{
		ID:       uuid.NewString(),
		Target:   target,
		Previous: rec.LastStatus,
		Current:  status,
		At:       now,
	}
	st := status
	rec.LastStatus = &st
	return tr
}

// Get returns a copy of the record for url.
func (t *Tracker) Get(url string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[url]
	if !ok {
		return Record{}, false
	}
	return copyRecord(rec), true
}

// Snapshot returns copies of all records in the order targets were first seen.
func (t *Tracker) Snapshot() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, 0, len(t.order))
	for _, url := range t.order {
		out = append(out, copyRecord(t.records[url]))
	}
	return out
}

func copyRecord(rec *Record) Record {
	c := *rec
	if rec.LastStatus != nil {
		st := *rec.LastStatus
		c.LastStatus = &st
	}
	return c
}
