package proto

import (
	"fmt"

	"github.com/david-fong/capswalk-sub001/internal/game"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1
)

// Client message type identifiers.
const (
	TypeMove = "move"
	TypePing = "ping"
)

// Server message type identifiers.
const (
	TypeSnapshot = "snapshot"
	TypeEvent    = "event"
	TypeRejected = "rejected"
	TypeReset    = "reset"
	TypePhase    = "phase"
	TypePong     = "pong"
)

// ClientMessage captures an inbound websocket message.
type ClientMessage struct {
	Ver     int             `json:"ver,omitempty" msgpack:"ver,omitempty"`
	Type    string          `json:"type" msgpack:"type"`
	Request *game.MoveEvent `json:"request,omitempty" msgpack:"request,omitempty"`
	SentAt  int64           `json:"sentAt,omitempty" msgpack:"sentAt,omitempty"`
}

// ServerMessage is every frame the hub pushes: the initial snapshot, accepted
// events, rejections for the requester, resets and phase changes.
type ServerMessage struct {
	Ver      int             `json:"ver" msgpack:"ver"`
	Type     string          `json:"type" msgpack:"type"`
	Event    *game.MoveEvent `json:"event,omitempty" msgpack:"event,omitempty"`
	Snapshot *game.Snapshot  `json:"snapshot,omitempty" msgpack:"snapshot,omitempty"`
	Phase    game.Phase      `json:"phase,omitempty" msgpack:"phase,omitempty"`
	Reason   string          `json:"reason,omitempty" msgpack:"reason,omitempty"`
	PlayerID game.PlayerID   `json:"playerId,omitempty" msgpack:"playerId,omitempty"`
	SentAt   int64           `json:"sentAt,omitempty" msgpack:"sentAt,omitempty"`
}

// DecodeClientMessage converts a raw frame into a structured message and
// checks the protocol version.
func DecodeClientMessage(codec Codec, payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := codec.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	if msg.Type == TypeMove && msg.Request == nil {
		return msg, fmt.Errorf("move message without request")
	}
	return msg, nil
}

// Snapshot wraps the state a new subscriber starts from.
func Snapshot(s game.Snapshot) ServerMessage {
	return ServerMessage{Ver: Version, Type: TypeSnapshot, Snapshot: &s}
}

// Reset wraps the state of a freshly reset game.
func Reset(s game.Snapshot) ServerMessage {
	return ServerMessage{Ver: Version, Type: TypeReset, Snapshot: &s}
}

// Event wraps an accepted move.
func Event(ev game.MoveEvent) ServerMessage {
	return ServerMessage{Ver: Version, Type: TypeEvent, Event: &ev}
}

// Rejected wraps a rejected request echoed back to its sender.
func Rejected(ev game.MoveEvent, reason string) ServerMessage {
	return ServerMessage{Ver: Version, Type: TypeRejected, Event: &ev, Reason: reason}
}

// PhaseChanged announces a lifecycle change.
func PhaseChanged(phase game.Phase) ServerMessage {
	return ServerMessage{Ver: Version, Type: TypePhase, Phase: phase}
}

// Pong answers a ping with the client's timestamp.
func Pong(sentAt int64) ServerMessage {
	return ServerMessage{Ver: Version, Type: TypePong, SentAt: sentAt}
}

// JoinResponse is returned by POST /join.
type JoinResponse struct {
	Ver      int           `json:"ver"`
	PlayerID game.PlayerID `json:"playerId"`
	Snapshot game.Snapshot `json:"snapshot"`
}

// EventsResponse is returned by GET /events.
type EventsResponse struct {
	Ver    int              `json:"ver"`
	Epoch  string           `json:"epoch"`
	Since  int64            `json:"since"`
	Events []game.MoveEvent `json:"events"`
}
