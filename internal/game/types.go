package game

import (
	"fmt"

	"github.com/david-fong/capswalk-sub001/internal/grid"
	"github.com/david-fong/capswalk-sub001/internal/lang"
)

// PlayerID identifies a participant. Negative ids are artificial players,
// positive ids are humans and zero is reserved.
type PlayerID = grid.PlayerID

// Location is where a player stands: a grid coordinate or its own bench.
type Location struct {
	Coord grid.Coord `json:"coord" msgpack:"coord"`
	Bench bool       `json:"bench,omitempty" msgpack:"bench,omitempty"`
}

// Player is the per-player protocol state.
type Player struct {
	ID                    PlayerID `json:"id" msgpack:"id"`
	Host                  Location `json:"host" msgpack:"host"`
	LastAcceptedRequestID int64    `json:"lastAcceptedRequestId" msgpack:"lastAcceptedRequestId"`
	RequestInFlight       bool     `json:"requestInFlight" msgpack:"requestInFlight"`
	Score                 float64  `json:"score" msgpack:"score"`
	Stockpile             float64  `json:"stockpile" msgpack:"stockpile"`
}

// IsArtificial reports whether the player is computer controlled.
func (p Player) IsArtificial() bool {
	return p.ID < 0
}

// MoveEvent is both a move request and the authority's response to it. Only
// the authority writes NewPair, NewScore, NewStockpile and EventID.
type MoveEvent struct {
	PlayerID              PlayerID   `json:"playerId" msgpack:"playerId"`
	LastAcceptedRequestID int64      `json:"lastAcceptedRequestId" msgpack:"lastAcceptedRequestId"`
	Dest                  grid.Coord `json:"dest" msgpack:"dest"`
	DestBench             bool       `json:"destBench,omitempty" msgpack:"destBench,omitempty"`
	DestOccupancyVersion  uint64     `json:"destOccupancyVersion" msgpack:"destOccupancyVersion"`
	NewPair               *lang.Pair `json:"newPair,omitempty" msgpack:"newPair,omitempty"`
	NewScore              *float64   `json:"newScore,omitempty" msgpack:"newScore,omitempty"`
	NewStockpile          *float64   `json:"newStockpile,omitempty" msgpack:"newStockpile,omitempty"`
	EventID               int64      `json:"eventId,omitempty" msgpack:"eventId,omitempty"`
	Epoch                 string     `json:"epoch,omitempty" msgpack:"epoch,omitempty"`
}

// Accepted reports whether the event is an accepted response.
func (ev MoveEvent) Accepted() bool {
	return ev.EventID > 0
}

// EventIDOf extracts the record key of an event.
func EventIDOf(ev MoveEvent) int64 {
	return ev.EventID
}

// asRequest drops every response-only field.
func (ev MoveEvent) asRequest() MoveEvent {
	ev.NewPair = nil
	ev.NewScore = nil
	ev.NewStockpile = nil
	ev.EventID = 0
	return ev
}

// Phase is the game's lifecycle stage. Moves are only accepted while Playing.
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhasePlaying Phase = "playing"
	PhasePaused  Phase = "paused"
	PhaseOver    Phase = "over"
)

// ParsePhase validates a phase name.
func ParsePhase(raw string) (Phase, error) {
	switch Phase(raw) {
	case PhaseLobby, PhasePlaying, PhasePaused, PhaseOver:
		return Phase(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPhase, raw)
	}
}

// Role distinguishes the single authority from its replicas.
type Role int

const (
	RoleAuthority Role = iota
	RoleReplica
)

func (r Role) String() string {
	if r == RoleAuthority {
		return "authority"
	}
	return "replica"
}
