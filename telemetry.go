package capswalk

import "sync/atomic"

const (
	metricJoins         = "hub_joins"
	metricSessions      = "hub_sessions"
	metricObservers     = "hub_observers"
	metricFramesDropped = "hub_frames_dropped"
)

type telemetryCounters struct {
	framesQueued      atomic.Uint64
	framesDropped     atomic.Uint64
	bytesSent         atomic.Uint64
	lastFrameBytes    atomic.Uint64
	duplicateRequests atomic.Uint64
	rateLimited       atomic.Uint64
	violations        atomic.Uint64
	sessionsReplaced  atomic.Uint64
	benchedOnLeave    atomic.Uint64
}

type telemetrySnapshot struct {
	FramesQueued      uint64 `json:"framesQueued"`
	FramesDropped     uint64 `json:"framesDropped"`
	BytesSent         uint64 `json:"bytesSent"`
	LastFrameBytes    uint64 `json:"lastFrameBytes"`
	DuplicateRequests uint64 `json:"duplicateRequests"`
	RateLimited       uint64 `json:"rateLimited"`
	Violations        uint64 `json:"protocolViolations"`
	SessionsReplaced  uint64 `json:"sessionsReplaced"`
	BenchedOnLeave    uint64 `json:"benchedOnLeave"`
}

func newTelemetryCounters() *telemetryCounters {
	return &telemetryCounters{}
}

func (t *telemetryCounters) RecordFrame(queued bool) {
	if queued {
		t.framesQueued.Add(1)
		return
	}
	t.framesDropped.Add(1)
}

func (t *telemetryCounters) RecordWrite(bytes int) {
	if bytes < 0 {
		bytes = 0
	}
	t.bytesSent.Add(uint64(bytes))
	t.lastFrameBytes.Store(uint64(bytes))
}

func (t *telemetryCounters) Snapshot() telemetrySnapshot {
	return telemetrySnapshot{
		FramesQueued:      t.framesQueued.Load(),
		FramesDropped:     t.framesDropped.Load(),
		BytesSent:         t.bytesSent.Load(),
		LastFrameBytes:    t.lastFrameBytes.Load(),
		DuplicateRequests: t.duplicateRequests.Load(),
		RateLimited:       t.rateLimited.Load(),
		Violations:        t.violations.Load(),
		SessionsReplaced:  t.sessionsReplaced.Load(),
		BenchedOnLeave:    t.benchedOnLeave.Load(),
	}
}
