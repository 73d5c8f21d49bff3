package journal

import (
	"fmt"
)

// GapSignal summarises the gaps observed since the last signal.
type GapSignal struct {
	Gaps        uint64
	TotalEvents uint64
	Ranges      []Gap
}

// Policy decides when gaps in a replicated stream justify a back-fill.
type Policy struct {
	totalEvents uint64
	gaps        uint64
	pending     bool
	ranges      []Gap
}

const gapThresholdPerHundred = 1
const gapRangeLimit = 8

// NewPolicy constructs an idle policy.
func NewPolicy() *Policy {
	return &Policy{ranges: make([]Gap, 0, gapRangeLimit)}
}

// NoteEvent counts one received event.
func (p *Policy) NoteEvent() {
	if p == nil {
		return
	}
	if p.totalEvents == ^uint64(0) {
		p.totalEvents = p.totalEvents / 2
		p.gaps = p.gaps / 2
	}
	p.totalEvents++
}

// NoteGap records that the range g was skipped by an early arrival.
func (p *Policy) NoteGap(g Gap) {
	if p == nil || g.Len() == 0 {
		return
	}
	p.gaps++
	if len(p.ranges) < gapRangeLimit {
		p.ranges = append(p.ranges, g)
	}
	p.evaluate()
}

func (p *Policy) evaluate() {
	if p == nil || p.pending || p.gaps == 0 {
		return
	}
	total := p.totalEvents
	if total == 0 {
		total = 1
	}
	if p.gaps*100 >= total*gapThresholdPerHundred {
		p.pending = true
	}
}

// Consume returns the pending signal, if any, and resets the counters.
func (p *Policy) Consume() (GapSignal, bool) {
	if p == nil || !p.pending {
		return GapSignal{}, false
	}
	signal := GapSignal{
		Gaps:        p.gaps,
		TotalEvents: p.totalEvents,
		Ranges:      append([]Gap(nil), p.ranges...),
	}
	p.pending = false
	p.totalEvents = 0
	p.gaps = 0
	if len(p.ranges) > 0 {
		p.ranges = p.ranges[:0]
	}
	return signal, true
}

// Summary formats the signal for logs.
func (s GapSignal) Summary() string {
	if s.Gaps == 0 && s.TotalEvents == 0 {
		return ""
	}
	return fmt.Sprintf("gaps=%d total_events=%d ranges=%v", s.Gaps, s.TotalEvents, s.Ranges)
}
