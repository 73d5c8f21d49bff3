// Package replica follows an authority from another process. It starts from
// the first snapshot frame, applies accepted events in EventID order and
// back-fills from the authority's /events endpoint when frames go missing.
package replica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/david-fong/capswalk-sub001/internal/game"
	"github.com/david-fong/capswalk-sub001/internal/journal"
	"github.com/david-fong/capswalk-sub001/internal/net/proto"
	"github.com/david-fong/capswalk-sub001/internal/telemetry"
	"github.com/david-fong/capswalk-sub001/logging"
	loggingNetwork "github.com/david-fong/capswalk-sub001/logging/network"
)

const (
	metricReplicaApplied   = "replica_events_applied"
	metricReplicaRejected  = "replica_events_rejected"
	metricReplicaStale     = "replica_events_stale"
	metricReplicaBackfills = "replica_backfills"

	defaultBackfillTimeout = 5 * time.Second
)

var (
	// ErrNoSnapshot is returned by Snapshot before the first snapshot frame.
	ErrNoSnapshot = errors.New("replica: no snapshot received")
	// ErrEpochChanged is returned by Backfill when the authority reset
	// since the replica's snapshot. The reset frame carries the new state.
	ErrEpochChanged = errors.New("replica: authority epoch changed")
)

// Config wires a Client.
type Config struct {
	// BaseURL is the authority's http root used for back-fill. Back-fill is
	// disabled when empty.
	BaseURL    string
	HTTPClient *http.Client
	Backlog    int
	Logger     telemetry.Logger
	Publisher  logging.Publisher
	Metrics    telemetry.Metrics
}

// Client holds one replica Manager and keeps it in step with the authority.
type Client struct {
	cfg Config

	mu        sync.Mutex
	manager   *game.Manager
	sequencer *journal.Sequencer[game.MoveEvent]
	updated   chan struct{}
}

// New constructs an idle client.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultBackfillTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.WrapLogger(log.Default())
	}
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.WrapMetrics(nil)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, updated: make(chan struct{})}
}

// Run consumes src until ctx ends or the source fails. The source is closed
// on return.
func (c *Client) Run(ctx context.Context, src Source) error {
	stop := context.AfterFunc(ctx, func() { src.Close() })
	defer stop()
	defer src.Close()
	for {
		msg, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := c.Handle(ctx, msg); err != nil {
			c.cfg.Logger.Printf("replica: %s frame: %v", msg.Type, err)
		}
	}
}

// Handle folds one server frame into the replica.
func (c *Client) Handle(ctx context.Context, msg proto.ServerMessage) error {
	switch msg.Type {
	case proto.TypeSnapshot, proto.TypeReset:
		if msg.Snapshot == nil {
			return fmt.Errorf("replica: %s frame without snapshot", msg.Type)
		}
		return c.restore(*msg.Snapshot)
	case proto.TypeEvent:
		if msg.Event == nil {
			return fmt.Errorf("replica: event frame without event")
		}
		return c.offer(ctx, *msg.Event)
	case proto.TypePhase:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.manager == nil {
			return ErrNoSnapshot
		}
		if err := c.manager.SetPhase(msg.Phase); err != nil {
			return err
		}
		c.notifyLocked()
		return nil
	default:
		// Rejections and pongs are addressed to players.
		return nil
	}
}

func (c *Client) restore(snapshot game.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.manager != nil && sameBoard(c.manager.Config(), snapshot.Config) {
		if err := c.manager.Restore(snapshot); err == nil {
			c.resetSequencerLocked(snapshot.LastEventID)
			c.notifyLocked()
			return nil
		}
	}
	manager, err := game.NewReplicaFromSnapshot(snapshot, game.Deps{
		Publisher: c.cfg.Publisher,
		Metrics:   c.cfg.Metrics,
	})
	if err != nil {
		return err
	}
	c.manager = manager
	c.resetSequencerLocked(snapshot.LastEventID)
	c.notifyLocked()
	return nil
}

func sameBoard(a, b game.Config) bool {
	return a.System == b.System && a.Width == b.Width && a.Height == b.Height &&
		a.Humans == b.Humans && a.Artificial == b.Artificial
}

func (c *Client) resetSequencerLocked(delivered int64) {
	if c.sequencer == nil {
		c.sequencer = journal.NewSequencer(game.EventIDOf, delivered, c.cfg.Backlog)
		c.sequencer.AttachTelemetry(telemetry.JournalDrops{Metrics: c.cfg.Metrics})
		return
	}
	c.sequencer.Reset(delivered)
}

func (c *Client) offer(ctx context.Context, ev game.MoveEvent) error {
	c.mu.Lock()
	if c.manager == nil {
		c.mu.Unlock()
		return ErrNoSnapshot
	}
	if !ev.Accepted() {
		c.mu.Unlock()
		return nil
	}
	if ev.Epoch != "" && ev.Epoch != c.manager.Epoch() {
		c.cfg.Metrics.Add(metricReplicaStale, 1)
		c.mu.Unlock()
		return nil
	}
	c.applyLocked(c.sequencer.Offer(ev))
	signal, gap := c.sequencer.ConsumeGapHint()
	c.mu.Unlock()

	if !gap || c.cfg.BaseURL == "" {
		return nil
	}
	for _, r := range signal.Ranges {
		loggingNetwork.GapDetected(ctx, c.cfg.Publisher, uint64(ev.EventID), logging.GameRef(), loggingNetwork.GapPayload{
			From:    r.From,
			To:      r.To,
			Summary: signal.Summary(),
		}, nil)
	}
	return c.Backfill(ctx)
}

func (c *Client) applyLocked(ready []game.MoveEvent) {
	for _, ev := range ready {
		if err := c.manager.Apply(ev); err != nil {
			c.cfg.Metrics.Add(metricReplicaRejected, 1)
			c.cfg.Logger.Printf("replica: apply event %d: %v", ev.EventID, err)
			continue
		}
		c.cfg.Metrics.Add(metricReplicaApplied, 1)
	}
	if len(ready) > 0 {
		c.notifyLocked()
	}
}

// Bootstrap restores the replica from the authority's /snapshot endpoint.
// Sources that do not open with a snapshot frame, such as the Redis relay,
// subscribe first and bootstrap second; events already covered by the
// snapshot are then dropped as duplicates.
func (c *Client) Bootstrap(ctx context.Context) error {
	if c.cfg.BaseURL == "" {
		return fmt.Errorf("replica: bootstrap needs a base URL")
	}
	var snapshot game.Snapshot
	if err := c.getJSON(ctx, "/snapshot", &snapshot); err != nil {
		return err
	}
	return c.restore(snapshot)
}

// Backfill fetches every accepted event after the delivered prefix from the
// authority and applies them.
func (c *Client) Backfill(ctx context.Context) error {
	if c.cfg.BaseURL == "" {
		return fmt.Errorf("replica: back-fill needs a base URL")
	}
	c.mu.Lock()
	if c.manager == nil {
		c.mu.Unlock()
		return ErrNoSnapshot
	}
	since := c.sequencer.Delivered()
	epoch := c.manager.Epoch()
	c.mu.Unlock()

	events, err := c.fetchEvents(ctx, since)
	if err != nil {
		return err
	}
	c.cfg.Metrics.Add(metricReplicaBackfills, 1)
	loggingNetwork.Backfilled(ctx, c.cfg.Publisher, uint64(since), logging.GameRef(), loggingNetwork.BackfillPayload{
		Since:   since,
		Fetched: len(events.Events),
	}, nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	if events.Epoch != epoch || c.manager.Epoch() != epoch {
		return fmt.Errorf("%w: have %s, authority has %s", ErrEpochChanged, epoch, events.Epoch)
	}
	for _, ev := range events.Events {
		c.applyLocked(c.sequencer.Offer(ev))
	}
	return nil
}

func (c *Client) fetchEvents(ctx context.Context, since int64) (proto.EventsResponse, error) {
	var out proto.EventsResponse
	path := "/events?" + url.Values{"since": {strconv.FormatInt(since, 10)}}.Encode()
	err := c.getJSON(ctx, path, &out)
	return out, err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("replica: GET %s: %w", path, err)
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("replica: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("replica: GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("replica: decode %s: %w", path, err)
	}
	return nil
}

// Snapshot captures the replica's current state.
func (c *Client) Snapshot() (game.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.manager == nil {
		return game.Snapshot{}, ErrNoSnapshot
	}
	return c.manager.Snapshot(), nil
}

// Delivered reports the highest EventID applied in order.
func (c *Client) Delivered() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sequencer == nil {
		return 0
	}
	return c.sequencer.Delivered()
}

// Updated returns a channel closed at the next state change.
func (c *Client) Updated() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updated
}

func (c *Client) notifyLocked() {
	close(c.updated)
	c.updated = make(chan struct{})
}
