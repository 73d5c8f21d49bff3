package game

import (
	"context"
	"fmt"

	"github.com/david-fong/capswalk-sub001/internal/grid"
	"github.com/david-fong/capswalk-sub001/logging"
	loggingMovement "github.com/david-fong/capswalk-sub001/logging/movement"
)

// SubmitMove builds a request for a local player from this manager's view of
// the destination and marks the player Pending. The request goes to the
// authority; the player stays Pending until the response is applied.
func (m *Manager) SubmitMove(id PlayerID, dest grid.Coord) (MoveEvent, error) {
	p, ok := m.players[id]
	if !ok {
		return MoveEvent{}, fmt.Errorf("%w: %d", ErrUnknownPlayer, id)
	}
	if p.RequestInFlight {
		return MoveEvent{}, fmt.Errorf("%w: player %d", ErrRequestInFlight, id)
	}
	var version uint64
	if tile, ok := m.grid.TileAt(dest); ok {
		version = tile.OccupancyVersion
	}
	p.RequestInFlight = true
	return MoveEvent{
		PlayerID:              id,
		LastAcceptedRequestID: p.LastAcceptedRequestID,
		Dest:                  dest,
		DestOccupancyVersion:  version,
		Epoch:                 m.epoch,
	}, nil
}

// SubmitBench builds a request that moves the player back to its bench.
func (m *Manager) SubmitBench(id PlayerID) (MoveEvent, error) {
	p, ok := m.players[id]
	if !ok {
		return MoveEvent{}, fmt.Errorf("%w: %d", ErrUnknownPlayer, id)
	}
	if p.RequestInFlight {
		return MoveEvent{}, fmt.Errorf("%w: player %d", ErrRequestInFlight, id)
	}
	p.RequestInFlight = true
	return MoveEvent{
		PlayerID:              id,
		LastAcceptedRequestID: p.LastAcceptedRequestID,
		DestBench:             true,
		DestOccupancyVersion:  m.benches[id].OccupancyVersion,
		Epoch:                 m.epoch,
	}, nil
}

// ValidateAndRespond decides a request. Rejections return the request
// unchanged with a nil error. Accepted responses carry the bumped counter
// and version, the destination's new pair and the next EventID, and are
// already appended to the record and applied locally. A counter mismatch
// returns ErrProtocolViolation and changes nothing.
func (m *Manager) ValidateAndRespond(req MoveEvent) (MoveEvent, error) {
	if m.role != RoleAuthority {
		return MoveEvent{}, ErrNotAuthority
	}
	resp := req.asRequest()
	ctx := context.Background()

	if req.Epoch != "" && req.Epoch != m.epoch {
		// A request from a previous game; its counter means nothing here.
		m.logRejected(ctx, resp, nil, "stale_epoch")
		return resp, nil
	}
	p, ok := m.players[req.PlayerID]
	if !ok {
		m.logRejected(ctx, resp, nil, loggingMovement.ReasonUnknownPlayer)
		return resp, nil
	}

	if m.phase != PhasePlaying {
		return m.reject(ctx, resp, nil, loggingMovement.ReasonPhase)
	}

	switch expected := p.LastAcceptedRequestID; {
	case req.LastAcceptedRequestID < expected:
		return MoveEvent{}, m.violation(ctx, p, req, ErrCounterBehind)
	case req.LastAcceptedRequestID > expected:
		return MoveEvent{}, m.violation(ctx, p, req, ErrCounterAhead)
	}

	dest, reason := m.destination(p, req)
	if reason != "" {
		return m.reject(ctx, resp, dest, reason)
	}

	score := p.Score + 1
	stockpile := p.Stockpile + dest.FreeValue
	resp.LastAcceptedRequestID = req.LastAcceptedRequestID + 1
	resp.DestOccupancyVersion = dest.OccupancyVersion + 1
	resp.NewScore = &score
	resp.NewStockpile = &stockpile
	resp.EventID = m.record.NextID()
	resp.Epoch = m.epoch
	if !dest.Bench {
		// The pair is chosen against the neighbourhood as it stands; the
		// destination's own old pair is not part of the avoid set. Only the
		// tree's hit counters change here; Apply writes the tile.
		pair := m.pickPair(dest, uint64(resp.EventID))
		resp.NewPair = &pair
	}
	// EventID came from NextID under the hub's lock, so Append only fails if
	// that lock is bypassed.
	if err := m.record.Append(resp); err != nil {
		return MoveEvent{}, fmt.Errorf("game: record accepted move: %w", err)
	}
	if err := m.Apply(resp); err != nil {
		return MoveEvent{}, fmt.Errorf("game: apply accepted move: %w", err)
	}

	m.metrics.Add(metricMovesAccepted, 1)
	m.metrics.Store(metricLastEventID, uint64(resp.EventID))
	loggingMovement.Accepted(ctx, m.publisher, uint64(resp.EventID), logging.PlayerRef(int64(p.ID)), loggingMovement.AcceptedPayload{
		EventID:   resp.EventID,
		Dest:      logDest(resp),
		Version:   resp.DestOccupancyVersion,
		Seq:       dest.Seq(),
		Score:     score,
		Stockpile: stockpile,
	}, nil)
	return resp, nil
}

// destination resolves the tile a request targets and returns a rejection
// reason when the move is not allowed.
func (m *Manager) destination(p *Player, req MoveEvent) (*grid.Tile, string) {
	var dest *grid.Tile
	if req.DestBench {
		dest = m.benches[p.ID]
	} else {
		tile, ok := m.grid.TileAt(req.Dest)
		if !ok {
			return nil, loggingMovement.ReasonOutOfBounds
		}
		if !p.Host.Bench && p.Host.Coord.InfDist(req.Dest) > m.cfg.MovementRadius {
			return tile, loggingMovement.ReasonNotAdjacent
		}
		dest = tile
	}
	if dest.IsOccupied() {
		return dest, loggingMovement.ReasonOccupied
	}
	if req.DestOccupancyVersion != dest.OccupancyVersion {
		return dest, loggingMovement.ReasonStaleVersion
	}
	return dest, ""
}

func (m *Manager) reject(ctx context.Context, resp MoveEvent, dest *grid.Tile, reason string) (MoveEvent, error) {
	// Phase rejections happen before the counter check; only a rejection
	// that matches the local counter is applied.
	if p, ok := m.players[resp.PlayerID]; ok && p.LastAcceptedRequestID == resp.LastAcceptedRequestID {
		if err := m.Apply(resp); err != nil {
			return MoveEvent{}, fmt.Errorf("game: apply rejection: %w", err)
		}
	}
	m.logRejected(ctx, resp, dest, reason)
	return resp, nil
}

func (m *Manager) logRejected(ctx context.Context, resp MoveEvent, dest *grid.Tile, reason string) {
	m.metrics.Add(metricMovesRejected, 1)
	var version uint64
	if dest != nil {
		version = dest.OccupancyVersion
	}
	loggingMovement.Rejected(ctx, m.publisher, uint64(m.lastEventID), logging.PlayerRef(int64(resp.PlayerID)), loggingMovement.RejectedPayload{
		Reason:  reason,
		Dest:    logDest(resp),
		Version: version,
	}, nil)
}

func (m *Manager) violation(ctx context.Context, p *Player, req MoveEvent, cause error) error {
	m.metrics.Add(metricProtocolViolations, 1)
	loggingMovement.ProtocolViolation(ctx, m.publisher, uint64(m.lastEventID), logging.PlayerRef(int64(p.ID)), loggingMovement.ProtocolViolationPayload{
		Expected: p.LastAcceptedRequestID,
		Got:      req.LastAcceptedRequestID,
	}, nil)
	return fmt.Errorf("%w: player %d: %w (expected %d, got %d)", ErrProtocolViolation, p.ID, cause, p.LastAcceptedRequestID, req.LastAcceptedRequestID)
}

// Apply folds an authority response into local state. It is idempotent and
// tolerates reordering: events that newer state already covers only move the
// destination's version forward.
func (m *Manager) Apply(ev MoveEvent) error {
	if ev.Epoch != "" && m.epoch != "" && ev.Epoch != m.epoch {
		return fmt.Errorf("%w: %s", ErrEpochMismatch, ev.Epoch)
	}
	p, ok := m.players[ev.PlayerID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPlayer, ev.PlayerID)
	}

	var dest *grid.Tile
	if ev.DestBench {
		dest = m.benches[p.ID]
	} else if tile, ok := m.grid.TileAt(ev.Dest); ok {
		dest = tile
	}

	// A rejection only answers the request it echoes (lag 0). An acceptance
	// seen again (lag 0) or one whose destination already moved on is old news.
	lag := ev.LastAcceptedRequestID - p.LastAcceptedRequestID
	superseded := lag > 1 || lag < 0 ||
		(lag == 0 && ev.Accepted()) ||
		(lag == 1 && !ev.Accepted()) ||
		(lag == 1 && dest != nil && dest.OccupancyVersion > ev.DestOccupancyVersion)
	if superseded {
		if dest != nil {
			dest.AdvanceVersion(ev.DestOccupancyVersion)
		}
		if lag != 0 {
			m.metrics.Add(metricMovesSuperseded, 1)
			loggingMovement.Superseded(context.Background(), m.publisher, uint64(ev.EventID), logging.PlayerRef(int64(p.ID)), loggingMovement.SupersededPayload{
				Lag:     lag,
				Dest:    logDest(ev),
				Version: ev.DestOccupancyVersion,
			}, nil)
		}
		return nil
	}

	switch lag {
	case 0:
		p.RequestInFlight = false
	case 1:
		if dest == nil {
			return fmt.Errorf("%w: acceptance for player %d targets %+v off the board", ErrMalformedEvent, p.ID, ev.Dest)
		}
		p.RequestInFlight = false
		if ev.NewPair != nil {
			dest.SetPair(*ev.NewPair)
		}
		dest.AdvanceVersion(ev.DestOccupancyVersion)
		dest.FreeValue = 0
		if ev.NewScore != nil {
			p.Score = *ev.NewScore
		}
		if ev.NewStockpile != nil {
			p.Stockpile = *ev.NewStockpile
		}
		if source := m.hostTile(p); source != nil && source.Occupant == p.ID {
			source.Evict()
		}
		dest.Occupy(p.ID)
		p.Host = Location{Coord: dest.Coord, Bench: dest.Bench}
		p.LastAcceptedRequestID = ev.LastAcceptedRequestID
		if ev.EventID > m.lastEventID {
			m.lastEventID = ev.EventID
		}
	default:
		panic(fmt.Sprintf("game: unreachable lag %d for player %d", lag, p.ID))
	}
	return nil
}

func (m *Manager) hostTile(p *Player) *grid.Tile {
	if p.Host.Bench {
		return m.benches[p.ID]
	}
	tile, _ := m.grid.TileAt(p.Host.Coord)
	return tile
}

func logDest(ev MoveEvent) loggingMovement.Dest {
	return loggingMovement.Dest{X: ev.Dest.X, Y: ev.Dest.Y, Bench: ev.DestBench}
}
