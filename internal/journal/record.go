// Package journal keeps ordered event logs. Record is the append-only log the
// authority serves catch-up reads from; Sequencer puts an unordered,
// duplicated stream back into EventID order on the receiving side.
package journal

import (
	"errors"
	"fmt"
	"sync"
)

// Telemetry captures the metrics adapter used by the journal to report drops.
type Telemetry interface {
	RecordJournalDrop(metric string)
}

const (
	metricJournalNonMonotonicID = "journal_non_monotonic_id"
	metricJournalDuplicate      = "journal_duplicate"
	metricJournalBacklogFull    = "journal_backlog_full"
)

// ErrNonMonotonic is returned when an appended event does not carry the next
// expected ID.
var ErrNonMonotonic = errors.New("journal: event id is not the next in sequence")

// IDFunc extracts the sequence number of an event. IDs start at 1.
type IDFunc[E any] func(E) int64

// Record is an append-only log of events keyed by a strictly increasing ID.
// It is never truncated; Reset clears it for a new game.
type Record[E any] struct {
	mu        sync.RWMutex
	entries   []E
	id        IDFunc[E]
	telemetry Telemetry
}

// NewRecord constructs an empty record.
func NewRecord[E any](id IDFunc[E]) *Record[E] {
	return &Record[E]{entries: make([]E, 0, 64), id: id}
}

// AttachTelemetry configures the telemetry sink used to report rejected appends.
func (r *Record[E]) AttachTelemetry(t Telemetry) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.telemetry = t
	r.mu.Unlock()
}

// NextID reports the ID the next appended event must carry.
func (r *Record[E]) NextID() int64 {
	if r == nil {
		return 1
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.entries)) + 1
}

// Append stores ev. Its ID must equal NextID.
func (r *Record[E]) Append(ev E) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := int64(len(r.entries)) + 1
	if got := r.id(ev); got != want {
		if r.telemetry != nil {
			r.telemetry.RecordJournalDrop(metricJournalNonMonotonicID)
		}
		return fmt.Errorf("%w: got %d want %d", ErrNonMonotonic, got, want)
	}
	r.entries = append(r.entries, ev)
	return nil
}

// Since returns a copy of every event with an ID greater than after, in order.
func (r *Record[E]) Since(after int64) []E {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if after < 0 {
		after = 0
	}
	if after >= int64(len(r.entries)) {
		return nil
	}
	// Append keeps IDs dense, so ID n sits at index n-1.
	start := int(after)
	out := make([]E, len(r.entries)-start)
	copy(out, r.entries[start:])
	return out
}

// Len reports the number of stored events.
func (r *Record[E]) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Last returns the most recent event.
func (r *Record[E]) Last() (E, bool) {
	var zero E
	if r == nil {
		return zero, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.entries) == 0 {
		return zero, false
	}
	return r.entries[len(r.entries)-1], true
}

// Reset discards every stored event.
func (r *Record[E]) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.entries = r.entries[:0]
	r.mu.Unlock()
}
