package grid

import "github.com/david-fong/capswalk-sub001/internal/lang"

// PlayerID identifies a participant. Negative ids are artificial players,
// positive ids are humans and NoPlayer marks an empty tile.
type PlayerID int64

// NoPlayer is the reserved id for "nobody".
const NoPlayer PlayerID = 0

// InitialOccupancyVersion is the version every tile starts a game with.
const InitialOccupancyVersion uint64 = 1

// Tile is the mutable state of one cell.
type Tile struct {
	Coord Coord
	// Bench marks a player's private off-grid tile. Bench tiles never carry a
	// character pair.
	Bench bool

	Occupant         PlayerID
	OccupancyVersion uint64
	Assigned         *lang.Pair
	FreeValue        float64
}

// IsOccupied reports whether a player stands on the tile.
func (t *Tile) IsOccupied() bool {
	return t != nil && t.Occupant != NoPlayer
}

// Seq returns the assigned typing sequence, or "" when unassigned.
func (t *Tile) Seq() string {
	if t == nil || t.Assigned == nil {
		return ""
	}
	return t.Assigned.Seq
}

// Occupy places id on the tile. It does not touch the occupancy version;
// versions are written by the movement protocol.
func (t *Tile) Occupy(id PlayerID) {
	t.Occupant = id
}

// Evict clears the occupant.
func (t *Tile) Evict() {
	t.Occupant = NoPlayer
}

// AdvanceVersion moves the occupancy version forward to v. Lower or equal
// values are ignored so the version never decreases. It reports whether the
// version changed.
func (t *Tile) AdvanceVersion(v uint64) bool {
	if v <= t.OccupancyVersion {
		return false
	}
	t.OccupancyVersion = v
	return true
}

// SetPair replaces the assigned pair. Bench tiles ignore the write.
func (t *Tile) SetPair(p lang.Pair) {
	if t.Bench {
		return
	}
	pair := p
	t.Assigned = &pair
}

// Reset restores the start-of-game state.
func (t *Tile) Reset() {
	t.Occupant = NoPlayer
	t.OccupancyVersion = InitialOccupancyVersion
	t.Assigned = nil
	t.FreeValue = 0
}

// NewBenchTile constructs the private tile a player waits on while off the
// grid.
func NewBenchTile() *Tile {
	return &Tile{Bench: true, OccupancyVersion: InitialOccupancyVersion}
}
