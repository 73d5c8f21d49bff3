// Package game implements the move protocol: per-player single-flight
// requests, authoritative validation, and the idempotent apply step shared by
// the authority and every replica.
//
// A Manager is not safe for concurrent use. Callers serialise access.
package game

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/david-fong/capswalk-sub001/internal/grid"
	"github.com/david-fong/capswalk-sub001/internal/journal"
	"github.com/david-fong/capswalk-sub001/internal/lang"
	"github.com/david-fong/capswalk-sub001/internal/telemetry"
	"github.com/david-fong/capswalk-sub001/logging"
	loggingLifecycle "github.com/david-fong/capswalk-sub001/logging/lifecycle"
	loggingTiles "github.com/david-fong/capswalk-sub001/logging/tiles"
)

const (
	metricMovesAccepted      = "game_moves_accepted"
	metricMovesRejected      = "game_moves_rejected"
	metricMovesSuperseded    = "game_moves_superseded"
	metricProtocolViolations = "game_protocol_violations"
	metricResets             = "game_resets"
	metricLastEventID        = "game_last_event_id"
)

// Deps carries the collaborators a Manager needs. Tree is required for the
// authority and ignored by replicas.
type Deps struct {
	Tree      *lang.Tree
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
}

// Manager owns one copy of the game state.
type Manager struct {
	role    Role
	cfg     Config
	grid    *grid.Grid
	tree    *lang.Tree
	players map[PlayerID]*Player
	roster  []PlayerID
	benches map[PlayerID]*grid.Tile
	record  *journal.Record[MoveEvent]

	phase       Phase
	epoch       string
	lastEventID int64

	publisher logging.Publisher
	metrics   telemetry.Metrics
}

// NewAuthority constructs the authoritative manager. It fails when the tree
// does not branch widely enough for the configured avoid radius.
func NewAuthority(cfg Config, deps Deps) (*Manager, error) {
	cfg = cfg.normalized()
	if deps.Tree == nil {
		return nil, fmt.Errorf("game: authority requires a sequence tree")
	}
	if branches, need := deps.Tree.BranchCount(), cfg.Threshold(); branches < need {
		return nil, fmt.Errorf("game: avoid radius %d: %w: have %d, need %d", cfg.AvoidRadius, lang.ErrInsufficientLeaves, branches, need)
	}
	m, err := newManager(RoleAuthority, cfg, deps)
	if err != nil {
		return nil, err
	}
	m.tree = deps.Tree
	loggingTiles.TreeBuilt(context.Background(), m.publisher, 0, logging.GameRef(), loggingTiles.TreeBuiltPayload{
		Leaves:    deps.Tree.LeafCount(),
		Threshold: cfg.Threshold(),
		Scheme:    string(cfg.Scheme),
	}, nil)
	return m, nil
}

// NewReplica constructs a replica with every player benched and no pairs
// assigned. Replicas normally start from NewReplicaFromSnapshot instead.
func NewReplica(cfg Config, deps Deps) (*Manager, error) {
	return newManager(RoleReplica, cfg.normalized(), deps)
}

func newManager(role Role, cfg Config, deps Deps) (*Manager, error) {
	g, err := grid.New(cfg.System, cfg.Width, cfg.Height)
	if err != nil {
		return nil, fmt.Errorf("game: %w", err)
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = telemetry.WrapMetrics(nil)
	}
	m := &Manager{
		role:      role,
		cfg:       cfg,
		grid:      g,
		players:   make(map[PlayerID]*Player),
		roster:    cfg.Roster(),
		benches:   make(map[PlayerID]*grid.Tile),
		record:    journal.NewRecord(EventIDOf),
		phase:     PhaseLobby,
		publisher: publisher,
		metrics:   metrics,
	}
	for _, id := range m.roster {
		bench := grid.NewBenchTile()
		bench.Occupy(id)
		m.benches[id] = bench
		m.players[id] = &Player{ID: id, Host: Location{Bench: true}, LastAcceptedRequestID: -1}
	}
	return m, nil
}

// Role reports whether the manager is the authority or a replica.
func (m *Manager) Role() Role { return m.role }

// Config returns the normalized config the manager was built with.
func (m *Manager) Config() Config { return m.cfg }

// Grid exposes the board for read-only queries.
func (m *Manager) Grid() *grid.Grid { return m.grid }

// Phase reports the current lifecycle stage.
func (m *Manager) Phase() Phase { return m.phase }

// Epoch identifies the current game. It changes on every authority reset.
func (m *Manager) Epoch() string { return m.epoch }

// LastEventID is the highest accepted event id applied so far.
func (m *Manager) LastEventID() int64 { return m.lastEventID }

// Record is the authority's event log. Replicas keep an empty record.
func (m *Manager) Record() *journal.Record[MoveEvent] { return m.record }

// Roster lists player ids in construction order.
func (m *Manager) Roster() []PlayerID {
	return append([]PlayerID(nil), m.roster...)
}

// Player returns a copy of the player's state.
func (m *Manager) Player(id PlayerID) (Player, bool) {
	p, ok := m.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Players returns copies of every player sorted by id.
func (m *Manager) Players() []Player {
	out := make([]Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BenchTile returns the player's private bench tile.
func (m *Manager) BenchTile(id PlayerID) (*grid.Tile, bool) {
	t, ok := m.benches[id]
	return t, ok
}

// SetPhase moves the game to phase.
func (m *Manager) SetPhase(phase Phase) error {
	if _, err := ParsePhase(string(phase)); err != nil {
		return err
	}
	if phase == m.phase {
		return nil
	}
	from := m.phase
	m.phase = phase
	loggingLifecycle.PhaseChanged(context.Background(), m.publisher, uint64(m.lastEventID), logging.GameRef(), loggingLifecycle.PhaseChangedPayload{
		From: string(from),
		To:   string(phase),
	}, nil)
	return nil
}

// Reset starts a new game: every player is benched with zeroed counters,
// tiles return to version 1 with fresh free values, the record is cleared,
// and players listed in spawns are placed on the grid. The authority also
// resets its tree, assigns every tile a pair and starts a new epoch.
func (m *Manager) Reset(spawns map[PlayerID]grid.Coord) error {
	if err := m.validateSpawns(spawns); err != nil {
		return err
	}

	for _, id := range m.roster {
		p := m.players[id]
		*p = Player{ID: id, Host: Location{Bench: true}, LastAcceptedRequestID: -1}
		bench := m.benches[id]
		bench.Reset()
		bench.Occupy(id)
	}
	m.grid.Reset()
	m.seedFreeValues()
	m.record.Reset()
	m.lastEventID = 0

	if m.role == RoleAuthority {
		m.epoch = uuid.NewString()
		m.tree.Reset(NewDeterministicRNG(m.cfg.Seed, rngLabelLang))
		for _, tile := range m.grid.Tiles() {
			m.reshuffle(tile, 0)
		}
	}

	for _, id := range m.roster {
		c, ok := spawns[id]
		if !ok {
			continue
		}
		tile, _ := m.grid.TileAt(c)
		m.benches[id].Evict()
		tile.Occupy(id)
		m.players[id].Host = Location{Coord: c}
	}

	m.metrics.Add(metricResets, 1)
	m.metrics.Store(metricLastEventID, 0)
	loggingLifecycle.GameReset(context.Background(), m.publisher, 0, logging.GameRef(), loggingLifecycle.GameResetPayload{
		Epoch:   m.epoch,
		Width:   m.cfg.Width,
		Height:  m.cfg.Height,
		Players: len(spawns),
	}, map[string]any{"role": m.role.String()})
	return nil
}

func (m *Manager) validateSpawns(spawns map[PlayerID]grid.Coord) error {
	taken := make(map[grid.Coord]PlayerID, len(spawns))
	for id, c := range spawns {
		if _, ok := m.players[id]; !ok {
			return fmt.Errorf("%w: player %d", ErrUnknownPlayer, id)
		}
		if !m.grid.InBounds(c) {
			return fmt.Errorf("%w: player %d at %+v is out of bounds", ErrInvalidSpawn, id, c)
		}
		if other, dup := taken[c]; dup {
			return fmt.Errorf("%w: players %d and %d share %+v", ErrInvalidSpawn, other, id, c)
		}
		taken[c] = id
	}
	return nil
}

func (m *Manager) seedFreeValues() {
	if m.cfg.MaxFreeValue <= 0 {
		return
	}
	rng := NewDeterministicRNG(m.cfg.Seed, rngLabelFreeValues)
	for _, tile := range m.grid.Tiles() {
		tile.FreeValue = float64(int(rng.Float64()*m.cfg.MaxFreeValue*100)) / 100
	}
}

// reshuffle gives tile a pair that does not conflict with its neighbourhood.
func (m *Manager) reshuffle(tile *grid.Tile, seq uint64) lang.Pair {
	pair := m.pickPair(tile, seq)
	tile.SetPair(pair)
	return pair
}

// pickPair chooses a pair for tile and counts the pick in the tree without
// writing it to the tile.
func (m *Manager) pickPair(tile *grid.Tile, seq uint64) lang.Pair {
	neighbours := m.grid.Neighbours(tile.Coord, m.cfg.AvoidRadius)
	avoid := make([]string, 0, len(neighbours))
	for _, n := range neighbours {
		if s := n.Seq(); s != "" {
			avoid = append(avoid, s)
		}
	}
	pair := m.tree.SelectNonConflicting(avoid, m.cfg.Scheme)
	loggingTiles.Reshuffled(context.Background(), m.publisher, seq, logging.GameRef(), loggingTiles.ReshuffledPayload{
		X:       tile.Coord.X,
		Y:       tile.Coord.Y,
		Char:    pair.Char,
		Seq:     pair.Seq,
		Avoided: len(avoid),
	}, nil)
	return pair
}

// DefaultSpawns places every roster player on a distinct tile drawn from the
// game seed, leaving a free ring around each spawn where the board allows.
func DefaultSpawns(cfg Config) map[PlayerID]grid.Coord {
	cfg = cfg.normalized()
	roster := cfg.Roster()
	spawns := make(map[PlayerID]grid.Coord, len(roster))
	total := cfg.Width * cfg.Height
	if total == 0 {
		return spawns
	}
	rng := NewDeterministicRNG(cfg.Seed, rngLabelSpawns)
	order := rng.Perm(total)
	taken := make(map[grid.Coord]bool, len(roster))
	spaced := func(c grid.Coord) bool {
		for other := range taken {
			if c.InfDist(other) <= cfg.MovementRadius {
				return false
			}
		}
		return true
	}
	// Two passes: spaced placements first, then anything still free.
	for pass := 0; pass < 2 && len(spawns) < len(roster); pass++ {
		for _, idx := range order {
			if len(spawns) == len(roster) {
				break
			}
			c := grid.Coord{X: idx % cfg.Width, Y: idx / cfg.Width}
			if taken[c] || (pass == 0 && !spaced(c)) {
				continue
			}
			spawns[roster[len(spawns)]] = c
			taken[c] = true
		}
	}
	return spawns
}
