package network

import (
	"context"

	"github.com/david-fong/capswalk-sub001/logging"
)

const (
	// EventSessionOpened is emitted when a websocket session starts.
	EventSessionOpened logging.EventType = "network.session_opened"
	// EventSessionClosed is emitted when a websocket session ends.
	EventSessionClosed logging.EventType = "network.session_closed"
	// EventDuplicateRequest is emitted when a client re-sends its last request.
	EventDuplicateRequest logging.EventType = "network.duplicate_request"
	// EventGapDetected is emitted when a replica notices missing event ids.
	EventGapDetected logging.EventType = "network.gap_detected"
	// EventBackfilled is emitted after a replica fetched missing events.
	EventBackfilled logging.EventType = "network.backfilled"
)

// SessionPayload describes a session.
type SessionPayload struct {
	Remote string `json:"remote,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// DuplicatePayload identifies the re-sent request.
type DuplicatePayload struct {
	LastAcceptedRequestID int64 `json:"lastAcceptedRequestId"`
}

// GapPayload captures the missing range.
type GapPayload struct {
	From    int64  `json:"from"`
	To      int64  `json:"to"`
	Summary string `json:"summary,omitempty"`
}

// BackfillPayload captures how many events a back-fill returned.
type BackfillPayload struct {
	Since   int64 `json:"since"`
	Fetched int   `json:"fetched"`
}

// SessionOpened publishes a debug event for a new session.
func SessionOpened(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload SessionPayload, extra map[string]any) {
	publish(ctx, pub, EventSessionOpened, seq, actor, logging.SeverityDebug, payload, extra)
}

// SessionClosed publishes a debug event for a finished session.
func SessionClosed(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload SessionPayload, extra map[string]any) {
	publish(ctx, pub, EventSessionClosed, seq, actor, logging.SeverityDebug, payload, extra)
}

// DuplicateRequest publishes a debug event for a re-sent request.
func DuplicateRequest(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload DuplicatePayload, extra map[string]any) {
	publish(ctx, pub, EventDuplicateRequest, seq, actor, logging.SeverityDebug, payload, extra)
}

// GapDetected publishes a warning when a replica falls behind.
func GapDetected(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload GapPayload, extra map[string]any) {
	publish(ctx, pub, EventGapDetected, seq, actor, logging.SeverityWarn, payload, extra)
}

// Backfilled publishes the result of a catch-up read.
func Backfilled(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload BackfillPayload, extra map[string]any) {
	publish(ctx, pub, EventBackfilled, seq, actor, logging.SeverityInfo, payload, extra)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, seq uint64, actor logging.EntityRef, severity logging.Severity, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Seq:      seq,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}
