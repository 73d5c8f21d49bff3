package journal

import (
	"sort"
	"sync"
)

// Gap is an inclusive range of missing IDs.
type Gap struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Len reports how many IDs the gap spans.
func (g Gap) Len() int64 {
	if g.To < g.From {
		return 0
	}
	return g.To - g.From + 1
}

// Sequencer releases events in ID order exactly once. Duplicates are dropped
// and early arrivals are held until the IDs before them are delivered.
type Sequencer[E any] struct {
	mu        sync.Mutex
	id        IDFunc[E]
	delivered int64
	pending   map[int64]E
	limit     int
	telemetry Telemetry
	policy    *Policy
}

// DefaultBacklog bounds how many early events a sequencer holds.
const DefaultBacklog = 1024

// NewSequencer constructs a sequencer that has delivered every ID up to and
// including delivered. A non-positive limit selects DefaultBacklog.
func NewSequencer[E any](id IDFunc[E], delivered int64, limit int) *Sequencer[E] {
	if limit <= 0 {
		limit = DefaultBacklog
	}
	return &Sequencer[E]{
		id:        id,
		delivered: delivered,
		pending:   make(map[int64]E),
		limit:     limit,
		policy:    NewPolicy(),
	}
}

// AttachTelemetry configures the telemetry sink used to report drops.
func (s *Sequencer[E]) AttachTelemetry(t Telemetry) {
	s.mu.Lock()
	s.telemetry = t
	s.mu.Unlock()
}

// Offer hands ev to the sequencer and returns the events that are now ready,
// in order. The result is empty for duplicates and early arrivals.
func (s *Sequencer[E]) Offer(ev E) []E {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.id(ev)
	s.policy.NoteEvent()
	if id <= s.delivered {
		s.dropLocked(metricJournalDuplicate)
		return nil
	}
	if _, dup := s.pending[id]; dup {
		s.dropLocked(metricJournalDuplicate)
		return nil
	}
	if id != s.delivered+1 {
		if len(s.pending) >= s.limit {
			s.dropLocked(metricJournalBacklogFull)
			s.policy.NoteGap(Gap{From: s.delivered + 1, To: id - 1})
			return nil
		}
		s.pending[id] = ev
		s.policy.NoteGap(Gap{From: s.delivered + 1, To: id - 1})
		return nil
	}

	ready := []E{ev}
	s.delivered = id
	for {
		next, ok := s.pending[s.delivered+1]
		if !ok {
			break
		}
		delete(s.pending, s.delivered+1)
		s.delivered++
		ready = append(ready, next)
	}
	return ready
}

// Delivered reports the highest ID released so far.
func (s *Sequencer[E]) Delivered() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}

// Buffered reports how many early events are being held.
func (s *Sequencer[E]) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Missing lists the ranges that separate the delivered prefix from the held
// events.
func (s *Sequencer[E]) Missing() []Gap {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	gaps := make([]Gap, 0, 2)
	cursor := s.delivered + 1
	for _, id := range ids {
		if id > cursor {
			gaps = append(gaps, Gap{From: cursor, To: id - 1})
		}
		cursor = id + 1
	}
	return gaps
}

// ConsumeGapHint reports whether enough gaps accumulated that the caller
// should back-fill from the authority. Counters reset after each signal.
func (s *Sequencer[E]) ConsumeGapHint() (GapSignal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy.Consume()
}

// Reset forgets every held event and restarts after delivered.
func (s *Sequencer[E]) Reset(delivered int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = delivered
	s.pending = make(map[int64]E)
	s.policy = NewPolicy()
}

func (s *Sequencer[E]) dropLocked(metric string) {
	if s.telemetry != nil {
		s.telemetry.RecordJournalDrop(metric)
	}
}
