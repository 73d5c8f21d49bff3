package game

import (
	"fmt"

	"github.com/david-fong/capswalk-sub001/internal/grid"
	"github.com/david-fong/capswalk-sub001/internal/lang"
)

// TileState is the serialisable state of one grid tile.
type TileState struct {
	Coord            grid.Coord `json:"coord" msgpack:"coord"`
	Occupant         PlayerID   `json:"occupant,omitempty" msgpack:"occupant,omitempty"`
	OccupancyVersion uint64     `json:"occupancyVersion" msgpack:"occupancyVersion"`
	Pair             *lang.Pair `json:"pair,omitempty" msgpack:"pair,omitempty"`
	FreeValue        float64    `json:"freeValue,omitempty" msgpack:"freeValue,omitempty"`
}

// PlayerState is a player together with its bench tile version.
type PlayerState struct {
	Player
	BenchVersion uint64 `json:"benchVersion" msgpack:"benchVersion"`
}

// Snapshot is the full game state a replica starts from. It is the only
// full dump the protocol ever sends.
type Snapshot struct {
	Epoch       string        `json:"epoch" msgpack:"epoch"`
	Config      Config        `json:"config" msgpack:"config"`
	Phase       Phase         `json:"phase" msgpack:"phase"`
	LastEventID int64         `json:"lastEventId" msgpack:"lastEventId"`
	Tiles       []TileState   `json:"tiles" msgpack:"tiles"`
	Players     []PlayerState `json:"players" msgpack:"players"`
}

// Snapshot captures the current state. In-flight flags are cleared because a
// request pending here is meaningless to the replica receiving the copy.
func (m *Manager) Snapshot() Snapshot {
	tiles := m.grid.Tiles()
	out := Snapshot{
		Epoch:       m.epoch,
		Config:      m.cfg,
		Phase:       m.phase,
		LastEventID: m.lastEventID,
		Tiles:       make([]TileState, 0, len(tiles)),
		Players:     make([]PlayerState, 0, len(m.players)),
	}
	for _, t := range tiles {
		state := TileState{
			Coord:            t.Coord,
			Occupant:         t.Occupant,
			OccupancyVersion: t.OccupancyVersion,
			FreeValue:        t.FreeValue,
		}
		if t.Assigned != nil {
			pair := *t.Assigned
			state.Pair = &pair
		}
		out.Tiles = append(out.Tiles, state)
	}
	for _, p := range m.Players() {
		p.RequestInFlight = false
		out.Players = append(out.Players, PlayerState{Player: p, BenchVersion: m.benches[p.ID].OccupancyVersion})
	}
	return out
}

// NewReplicaFromSnapshot builds a replica whose state equals the snapshot.
func NewReplicaFromSnapshot(snapshot Snapshot, deps Deps) (*Manager, error) {
	m, err := NewReplica(snapshot.Config, deps)
	if err != nil {
		return nil, err
	}
	if err := m.Restore(snapshot); err != nil {
		return nil, err
	}
	return m, nil
}

// Restore replaces the replica's state with the snapshot.
func (m *Manager) Restore(snapshot Snapshot) error {
	if m.role == RoleAuthority {
		return fmt.Errorf("game: authority cannot restore a snapshot")
	}
	cfg := snapshot.Config.normalized()
	if cfg.Width != m.cfg.Width || cfg.Height != m.cfg.Height || cfg.System != m.cfg.System {
		return fmt.Errorf("game: snapshot board %s %dx%d does not match %s %dx%d", cfg.System, cfg.Width, cfg.Height, m.cfg.System, m.cfg.Width, m.cfg.Height)
	}
	if len(snapshot.Tiles) != m.grid.Len() {
		return fmt.Errorf("game: snapshot has %d tiles, board has %d", len(snapshot.Tiles), m.grid.Len())
	}
	if _, err := ParsePhase(string(snapshot.Phase)); err != nil {
		return err
	}
	for _, ps := range snapshot.Players {
		if _, ok := m.players[ps.ID]; !ok {
			return fmt.Errorf("%w: %d in snapshot", ErrUnknownPlayer, ps.ID)
		}
	}
	seen := make(map[grid.Coord]struct{}, len(snapshot.Tiles))
	for _, ts := range snapshot.Tiles {
		if !m.grid.InBounds(ts.Coord) {
			return fmt.Errorf("game: snapshot tile %+v out of bounds", ts.Coord)
		}
		if _, dup := seen[ts.Coord]; dup {
			return fmt.Errorf("game: snapshot lists tile %+v twice", ts.Coord)
		}
		seen[ts.Coord] = struct{}{}
	}

	m.grid.Reset()
	for _, ts := range snapshot.Tiles {
		tile, _ := m.grid.TileAt(ts.Coord)
		tile.Occupant = ts.Occupant
		tile.OccupancyVersion = ts.OccupancyVersion
		tile.FreeValue = ts.FreeValue
		if ts.Pair != nil {
			tile.SetPair(*ts.Pair)
		}
	}
	for _, ps := range snapshot.Players {
		p := m.players[ps.ID]
		*p = ps.Player
		p.RequestInFlight = false
		bench := m.benches[ps.ID]
		bench.Reset()
		bench.OccupancyVersion = ps.BenchVersion
		if p.Host.Bench {
			bench.Occupy(p.ID)
		}
	}
	m.record.Reset()
	m.epoch = snapshot.Epoch
	m.phase = snapshot.Phase
	m.lastEventID = snapshot.LastEventID
	return nil
}
