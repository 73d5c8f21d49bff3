// Package capswalk hosts the authoritative game: the Hub serialises every
// call into the game manager, hands out player slots, and fans accepted
// events out to player sessions and observing replicas.
package capswalk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/david-fong/capswalk-sub001/internal/game"
	"github.com/david-fong/capswalk-sub001/internal/lang/packs"
	"github.com/david-fong/capswalk-sub001/internal/net/proto"
	"github.com/david-fong/capswalk-sub001/internal/telemetry"
	"github.com/david-fong/capswalk-sub001/logging"
	loggingLifecycle "github.com/david-fong/capswalk-sub001/logging/lifecycle"
)

// Subscriber receives frames pushed by the hub. Deliver is called with the
// hub lock held and must not block; it reports false when the frame could
// not be queued. Close ends the subscription from the hub's side.
type Subscriber interface {
	Deliver(msg proto.ServerMessage) bool
	Close(reason string)
}

// Hub owns the authoritative manager, the player slots and every subscriber.
type Hub struct {
	mu        sync.Mutex
	cfg       HubConfig
	manager   *game.Manager
	claimed   map[game.PlayerID]bool
	sessions  map[game.PlayerID]Subscriber
	observers map[uint64]Subscriber
	nextObs   uint64

	publisher logging.Publisher
	metrics   telemetry.Metrics
	logger    telemetry.Logger
	telemetry *telemetryCounters
}

// NewHub builds the language tree for cfg.Pack and starts a fresh game.
func NewHub(cfg HubConfig) (*Hub, error) {
	cfg = cfg.Normalized()
	h := &Hub{
		claimed:   make(map[game.PlayerID]bool),
		sessions:  make(map[game.PlayerID]Subscriber),
		observers: make(map[uint64]Subscriber),
		publisher: cfg.Publisher,
		metrics:   telemetry.WrapMetrics(cfg.Metrics),
		logger:    cfg.Logger,
		telemetry: newTelemetryCounters(),
	}
	if err := h.rebuildLocked(cfg, cfg.InitialPhase); err != nil {
		return nil, err
	}
	return h, nil
}

// rebuildLocked replaces the manager with a freshly reset one for cfg.
func (h *Hub) rebuildLocked(cfg HubConfig, phase game.Phase) error {
	pack, err := packs.Load(cfg.Pack)
	if err != nil {
		return err
	}
	tree, err := pack.Build(cfg.Game.Threshold())
	if err != nil {
		return err
	}
	manager, err := game.NewAuthority(cfg.Game, game.Deps{
		Tree:      tree,
		Publisher: logging.WithFields(h.publisher, map[string]any{"pack": pack.Name}),
		Metrics:   h.metrics,
	})
	if err != nil {
		return err
	}
	manager.Record().AttachTelemetry(telemetry.JournalDrops{Metrics: h.metrics})
	if err := manager.Reset(game.DefaultSpawns(cfg.Game)); err != nil {
		return err
	}
	if err := manager.SetPhase(phase); err != nil {
		return err
	}
	h.cfg = cfg
	h.manager = manager
	return nil
}

// Join claims the lowest free human slot and returns the state the client
// starts from.
func (h *Hub) Join() (proto.JoinResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range h.manager.Roster() {
		if id <= 0 || h.claimed[id] {
			continue
		}
		h.claimed[id] = true
		player, _ := h.manager.Player(id)
		h.metrics.Add(metricJoins, 1)
		loggingLifecycle.PlayerJoined(context.Background(), h.publisher, uint64(h.manager.LastEventID()), logging.PlayerRef(int64(id)), loggingLifecycle.PlayerJoinedPayload{
			X:     player.Host.Coord.X,
			Y:     player.Host.Coord.Y,
			Bench: player.Host.Bench,
		}, nil)
		return proto.JoinResponse{Ver: ProtocolVersion, PlayerID: id, Snapshot: h.manager.Snapshot()}, nil
	}
	return proto.JoinResponse{}, ErrRosterFull
}

// Subscribe attaches a session to a joined player and queues the current
// snapshot as its first frame. An existing session for the player is closed.
func (h *Hub) Subscribe(id game.PlayerID, sub Subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.claimed[id] {
		return fmt.Errorf("%w: %d", ErrNotJoined, id)
	}
	if existing, ok := h.sessions[id]; ok && existing != sub {
		existing.Close(ReasonReplaced)
		h.telemetry.sessionsReplaced.Add(1)
	}
	h.sessions[id] = sub
	h.metrics.Store(metricSessions, uint64(len(h.sessions)))
	h.deliverLocked(id, sub, proto.Snapshot(h.manager.Snapshot()))
	return nil
}

// Observe attaches a read-only subscriber such as a replica or the relay.
// The returned function detaches it.
func (h *Hub) Observe(sub Subscriber) func() {
	h.mu.Lock()
	h.nextObs++
	key := h.nextObs
	h.observers[key] = sub
	h.metrics.Store(metricObservers, uint64(len(h.observers)))
	h.deliverLocked(0, sub, proto.Snapshot(h.manager.Snapshot()))
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.observers, key)
		h.metrics.Store(metricObservers, uint64(len(h.observers)))
		h.mu.Unlock()
	}
}

// Disconnect releases the player's slot when sub is still its session and
// moves the player back to its bench so the tile frees up for others.
func (h *Hub) Disconnect(id game.PlayerID, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.sessions[id]
	if !ok || current != sub {
		return
	}
	delete(h.sessions, id)
	delete(h.claimed, id)
	h.metrics.Store(metricSessions, uint64(len(h.sessions)))

	benched := h.benchLocked(id)
	loggingLifecycle.PlayerDisconnected(context.Background(), h.publisher, uint64(h.manager.LastEventID()), logging.PlayerRef(int64(id)), loggingLifecycle.PlayerDisconnectedPayload{
		Reason:  ReasonDisconnected,
		Benched: benched,
	}, nil)
}

// benchLocked runs a bench move for id through the protocol. Outside the
// playing phase the request is rejected and the player stays put.
func (h *Hub) benchLocked(id game.PlayerID) bool {
	player, ok := h.manager.Player(id)
	if !ok || player.Host.Bench {
		return false
	}
	req, err := h.manager.SubmitBench(id)
	if err != nil {
		h.logger.Printf("bench request for %d failed: %v", id, err)
		return false
	}
	resp, err := h.manager.ValidateAndRespond(req)
	if err != nil {
		h.logger.Printf("bench validation for %d failed: %v", id, err)
		return false
	}
	if !resp.Accepted() {
		return false
	}
	h.telemetry.benchedOnLeave.Add(1)
	h.broadcastLocked(proto.Event(resp))
	return true
}

// HandleMove validates a request from the session bound to id. Accepted
// responses are broadcast to every subscriber, the requester included;
// rejections are only returned. A non-nil error means the session broke the
// protocol and must be closed.
func (h *Hub) HandleMove(id game.PlayerID, req game.MoveEvent) (game.MoveEvent, error) {
	if req.PlayerID != id {
		h.telemetry.violations.Add(1)
		return game.MoveEvent{}, fmt.Errorf("%w: session for %d sent a request for %d", game.ErrProtocolViolation, id, req.PlayerID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.claimed[id] {
		return game.MoveEvent{}, fmt.Errorf("%w: %d", ErrNotJoined, id)
	}
	resp, err := h.manager.ValidateAndRespond(req)
	if err != nil {
		if errors.Is(err, game.ErrProtocolViolation) {
			h.telemetry.violations.Add(1)
		}
		return game.MoveEvent{}, err
	}
	if resp.Accepted() {
		h.broadcastLocked(proto.Event(resp))
	}
	return resp, nil
}

// EventsSince returns every accepted event after the given id.
func (h *Hub) EventsSince(after int64) proto.EventsResponse {
	h.mu.Lock()
	defer h.mu.Unlock()
	if after < 0 {
		after = 0
	}
	events := h.manager.Record().Since(after)
	if events == nil {
		events = []game.MoveEvent{}
	}
	return proto.EventsResponse{Ver: ProtocolVersion, Epoch: h.manager.Epoch(), Since: after, Events: events}
}

// CurrentConfig returns the game config and pack the hub is running.
func (h *Hub) CurrentConfig() (game.Config, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg.Game, h.cfg.Pack
}

// Reset starts a new game with cfg and pack, keeping the current phase.
// Slots still present in the new roster stay claimed; sessions of players
// that no longer exist are closed. Every subscriber receives the new state.
func (h *Hub) Reset(cfg game.Config, pack string) (game.Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.cfg
	next.Game = cfg
	next.Pack = pack
	next = next.Normalized()
	if err := h.rebuildLocked(next, h.manager.Phase()); err != nil {
		return game.Snapshot{}, err
	}

	for id, sub := range h.sessions {
		if _, ok := h.manager.Player(id); ok {
			continue
		}
		sub.Close(ReasonRemoved)
		delete(h.sessions, id)
		delete(h.claimed, id)
	}
	for id := range h.claimed {
		if _, ok := h.manager.Player(id); !ok {
			delete(h.claimed, id)
		}
	}
	h.metrics.Store(metricSessions, uint64(len(h.sessions)))

	snapshot := h.manager.Snapshot()
	h.broadcastLocked(proto.Reset(snapshot))
	return snapshot, nil
}

// SetPhase changes the lifecycle phase and announces it.
func (h *Hub) SetPhase(phase game.Phase) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.manager.SetPhase(phase); err != nil {
		return err
	}
	h.broadcastLocked(proto.PhaseChanged(phase))
	return nil
}

// Snapshot returns the authoritative state.
func (h *Hub) Snapshot() game.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.manager.Snapshot()
}

// Diagnostics reports the hub's state for operators.
func (h *Hub) Diagnostics() Diagnostics {
	h.mu.Lock()
	defer h.mu.Unlock()

	players := h.manager.Players()
	out := Diagnostics{
		Ver:         ProtocolVersion,
		Epoch:       h.manager.Epoch(),
		Phase:       h.manager.Phase(),
		LastEventID: h.manager.LastEventID(),
		Pack:        h.cfg.Pack,
		Config:      h.cfg.Game,
		Players:     make([]diagnosticsPlayer, 0, len(players)),
		Observers:   len(h.observers),
		Telemetry:   h.telemetry.Snapshot(),
		Metrics:     telemetry.Snapshot(h.metrics),
	}
	for _, p := range players {
		_, connected := h.sessions[p.ID]
		out.Players = append(out.Players, diagnosticsPlayer{Player: p, Claimed: h.claimed[p.ID], Connected: connected})
	}
	return out
}

// RecordDuplicate counts a request a session answered from its cache.
func (h *Hub) RecordDuplicate() { h.telemetry.duplicateRequests.Add(1) }

// RecordRateLimited counts a request a session refused for its rate.
func (h *Hub) RecordRateLimited() { h.telemetry.rateLimited.Add(1) }

// RecordWrite counts bytes a session wrote to its connection.
func (h *Hub) RecordWrite(bytes int) { h.telemetry.RecordWrite(bytes) }

// Publisher returns the structured event publisher the hub logs through.
func (h *Hub) Publisher() logging.Publisher { return h.publisher }

// Logger returns the operator logger.
func (h *Hub) Logger() telemetry.Logger { return h.logger }

// broadcastLocked queues msg for every session and observer. Sessions that
// cannot keep up are closed; observers recover dropped frames by back-fill.
func (h *Hub) broadcastLocked(msg proto.ServerMessage) {
	ids := make([]game.PlayerID, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		h.deliverLocked(id, h.sessions[id], msg)
	}
	for _, sub := range h.observers {
		h.deliverLocked(0, sub, msg)
	}
}

func (h *Hub) deliverLocked(id game.PlayerID, sub Subscriber, msg proto.ServerMessage) {
	queued := sub.Deliver(msg)
	h.telemetry.RecordFrame(queued)
	if queued {
		return
	}
	h.metrics.Add(metricFramesDropped, 1)
	if id != 0 {
		// A player that misses its own response would stay pending forever.
		sub.Close(ReasonSlowConsumer)
	}
}
