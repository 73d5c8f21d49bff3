// Package movement publishes structured events for the move protocol.
package movement

import (
	"context"

	"github.com/david-fong/capswalk-sub001/logging"
)

const (
	// EventAccepted is emitted when the authority accepts a move request.
	EventAccepted logging.EventType = "movement.accepted"
	// EventRejected is emitted when the authority silently rejects a request.
	EventRejected logging.EventType = "movement.rejected"
	// EventSuperseded is emitted when a replica receives an event that a
	// newer one already covers.
	EventSuperseded logging.EventType = "movement.superseded"
	// EventProtocolViolation is emitted when a request carries a counter the
	// authority cannot reconcile.
	EventProtocolViolation logging.EventType = "movement.protocol_violation"
)

// Rejection reasons carried in RejectedPayload.Reason.
const (
	ReasonUnknownPlayer = "unknown_player"
	ReasonPhase         = "phase"
	ReasonOutOfBounds   = "out_of_bounds"
	ReasonNotAdjacent   = "not_adjacent"
	ReasonOccupied      = "occupied"
	ReasonStaleVersion  = "stale_version"
)

// Dest is the destination of a move as it appears in logs.
type Dest struct {
	X     int  `json:"x"`
	Y     int  `json:"y"`
	Bench bool `json:"bench,omitempty"`
}

// AcceptedPayload captures the outcome of an accepted move.
type AcceptedPayload struct {
	EventID   int64   `json:"eventId"`
	Dest      Dest    `json:"dest"`
	Version   uint64  `json:"version"`
	Seq       string  `json:"seq,omitempty"`
	Score     float64 `json:"score"`
	Stockpile float64 `json:"stockpile"`
}

// RejectedPayload captures why a move was refused.
type RejectedPayload struct {
	Reason  string `json:"reason"`
	Dest    Dest   `json:"dest"`
	Version uint64 `json:"version"`
}

// SupersededPayload captures the lag of an event that arrived too late.
type SupersededPayload struct {
	Lag     int64  `json:"lag"`
	Dest    Dest   `json:"dest"`
	Version uint64 `json:"version"`
}

// ProtocolViolationPayload captures the mismatching counters.
type ProtocolViolationPayload struct {
	Expected int64 `json:"expected"`
	Got      int64 `json:"got"`
}

// Accepted publishes an accepted move.
func Accepted(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload AcceptedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAccepted,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryGameplay,
		Payload:  payload,
		Extra:    extra,
	})
}

// Rejected publishes a silent rejection. Rejections are routine under
// concurrency and are logged at debug severity.
func Rejected(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload RejectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRejected,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryGameplay,
		Payload:  payload,
		Extra:    extra,
	})
}

// Superseded publishes a no-op apply of an out-of-date event.
func Superseded(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload SupersededPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSuperseded,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryGameplay,
		Payload:  payload,
		Extra:    extra,
	})
}

// ProtocolViolation publishes a warning for a request that broke the
// request counter contract.
func ProtocolViolation(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload ProtocolViolationPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventProtocolViolation,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryGameplay,
		Payload:  payload,
		Extra:    extra,
	})
}
