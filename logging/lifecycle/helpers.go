package lifecycle

import (
	"context"

	"github.com/david-fong/capswalk-sub001/logging"
)

const (
	// EventPlayerJoined is emitted when a connection claims a player slot.
	EventPlayerJoined logging.EventType = "lifecycle.player_joined"
	// EventPlayerDisconnected is emitted when a player's connection goes away.
	EventPlayerDisconnected logging.EventType = "lifecycle.player_disconnected"
	// EventGameReset is emitted after the game state is rebuilt.
	EventGameReset logging.EventType = "lifecycle.game_reset"
	// EventPhaseChanged is emitted on every phase transition.
	EventPhaseChanged logging.EventType = "lifecycle.phase_changed"
)

// PlayerJoinedPayload captures where a joining player stands.
type PlayerJoinedPayload struct {
	X     int  `json:"x"`
	Y     int  `json:"y"`
	Bench bool `json:"bench,omitempty"`
}

// PlayerDisconnectedPayload captures the reason a player left.
type PlayerDisconnectedPayload struct {
	Reason  string `json:"reason"`
	Benched bool   `json:"benched"`
}

// GameResetPayload describes the rebuilt game.
type GameResetPayload struct {
	Epoch   string `json:"epoch"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Players int    `json:"players"`
	Pack    string `json:"pack,omitempty"`
}

// PhaseChangedPayload records a phase transition.
type PhaseChangedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PlayerJoined publishes a player join event.
func PlayerJoined(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload PlayerJoinedPayload, extra map[string]any) {
	publish(ctx, pub, EventPlayerJoined, seq, actor, logging.SeverityInfo, payload, extra)
}

// PlayerDisconnected publishes a player disconnect event.
func PlayerDisconnected(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload PlayerDisconnectedPayload, extra map[string]any) {
	publish(ctx, pub, EventPlayerDisconnected, seq, actor, logging.SeverityInfo, payload, extra)
}

// GameReset publishes a reset event.
func GameReset(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload GameResetPayload, extra map[string]any) {
	publish(ctx, pub, EventGameReset, seq, actor, logging.SeverityInfo, payload, extra)
}

// PhaseChanged publishes a phase transition.
func PhaseChanged(ctx context.Context, pub logging.Publisher, seq uint64, actor logging.EntityRef, payload PhaseChangedPayload, extra map[string]any) {
	publish(ctx, pub, EventPhaseChanged, seq, actor, logging.SeverityInfo, payload, extra)
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
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}
