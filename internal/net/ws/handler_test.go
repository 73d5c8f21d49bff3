package ws

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	capswalk "github.com/david-fong/capswalk-sub001"
	"github.com/david-fong/capswalk-sub001/internal/game"
	"github.com/david-fong/capswalk-sub001/internal/net/proto"
)

func newTestHub(t *testing.T) *capswalk.Hub {
	t.Helper()
	cfg := capswalk.DefaultHubConfig()
	cfg.Game.Width = 6
	cfg.Game.Height = 5
	cfg.Game.Humans = 2
	hub, err := capswalk.NewHub(cfg)
	if err != nil {
		t.Fatalf("NewHub: %v", err)
	}
	return hub
}

func startServer(t *testing.T, hub *capswalk.Hub, cfg HandlerConfig) *httptest.Server {
	t.Helper()
	handler := NewHandler(hub, cfg)
	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, baseURL string, query url.Values) *websocket.Conn {
	t.Helper()
	parsed, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("failed to parse test server url: %v", err)
	}
	parsed.Scheme = "ws"
	parsed.Path = "/"
	parsed.RawQuery = query.Encode()

	conn, resp, err := websocket.DefaultDialer.Dial(parsed.String(), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	t.Cleanup(func() {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		if resp != nil {
			resp.Body.Close()
		}
	})
	return conn
}

func playerQuery(id game.PlayerID, codec string) url.Values {
	query := url.Values{}
	query.Set("id", strconv.FormatInt(int64(id), 10))
	if codec != "" {
		query.Set("codec", codec)
	}
	return query
}

func readFrame(t *testing.T, conn *websocket.Conn, codec proto.Codec) proto.ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frameType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	if frameType != codec.FrameType() {
		t.Fatalf("expected frame type %d, got %d", codec.FrameType(), frameType)
	}
	var msg proto.ServerMessage
	if err := codec.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	return msg
}

func sendMove(t *testing.T, conn *websocket.Conn, codec proto.Codec, req game.MoveEvent) {
	t.Helper()
	data, err := codec.Marshal(proto.ClientMessage{Ver: proto.Version, Type: proto.TypeMove, Request: &req})
	if err != nil {
		t.Fatalf("failed to encode move: %v", err)
	}
	if err := conn.WriteMessage(codec.FrameType(), data); err != nil {
		t.Fatalf("failed to send move: %v", err)
	}
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		if !errors.As(err, &closeErr) {
			t.Fatalf("expected close frame, got %v", err)
		}
		if closeErr.Code != code {
			t.Fatalf("expected close code %d, got %d (%s)", code, closeErr.Code, closeErr.Text)
		}
		return
	}
}

// freeNeighbour builds a request for id onto a free adjacent tile.
func freeNeighbour(t *testing.T, snapshot game.Snapshot, id game.PlayerID) game.MoveEvent {
	t.Helper()
	var host game.Location
	var counter int64
	for _, p := range snapshot.Players {
		if p.ID == id {
			host, counter = p.Host, p.LastAcceptedRequestID
		}
	}
	for _, tile := range snapshot.Tiles {
		if tile.Occupant != 0 || (!host.Bench && tile.Coord.InfDist(host.Coord) != 1) {
			continue
		}
		return game.MoveEvent{
			PlayerID:              id,
			LastAcceptedRequestID: counter,
			Dest:                  tile.Coord,
			DestOccupancyVersion:  tile.OccupancyVersion,
			Epoch:                 snapshot.Epoch,
		}
	}
	t.Fatalf("no free tile next to %d", id)
	return game.MoveEvent{}
}

func TestHandleMoveAcceptedAndDuplicate(t *testing.T) {
	hub := newTestHub(t)
	join, err := hub.Join()
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	srv := startServer(t, hub, HandlerConfig{})
	conn := dial(t, srv.URL, playerQuery(join.PlayerID, ""))

	first := readFrame(t, conn, proto.JSON)
	if first.Type != proto.TypeSnapshot || first.Snapshot == nil {
		t.Fatalf("expected snapshot frame, got %+v", first)
	}

	req := freeNeighbour(t, *first.Snapshot, join.PlayerID)
	sendMove(t, conn, proto.JSON, req)
	accepted := readFrame(t, conn, proto.JSON)
	if accepted.Type != proto.TypeEvent || accepted.Event == nil || accepted.Event.EventID != 1 {
		t.Fatalf("expected accepted event, got %+v", accepted)
	}

	// A re-sent copy is answered from the session cache instead of being
	// treated as a replayed counter.
	sendMove(t, conn, proto.JSON, req)
	again := readFrame(t, conn, proto.JSON)
	if again.Type != proto.TypeEvent || again.Event.EventID != 1 {
		t.Fatalf("expected cached event, got %+v", again)
	}
	if got := hub.Diagnostics().Telemetry.DuplicateRequests; got != 1 {
		t.Fatalf("expected 1 duplicate, got %d", got)
	}
}

func TestHandleClosesOnProtocolViolation(t *testing.T) {
	hub := newTestHub(t)
	join, _ := hub.Join()
	srv := startServer(t, hub, HandlerConfig{})
	conn := dial(t, srv.URL, playerQuery(join.PlayerID, ""))

	snapshot := readFrame(t, conn, proto.JSON)
	req := freeNeighbour(t, *snapshot.Snapshot, join.PlayerID)
	req.LastAcceptedRequestID += 3
	sendMove(t, conn, proto.JSON, req)

	expectClose(t, conn, websocket.ClosePolicyViolation)
}

func TestHandleRejectsUnknownPlayer(t *testing.T) {
	hub := newTestHub(t)
	srv := startServer(t, hub, HandlerConfig{})
	conn := dial(t, srv.URL, playerQuery(2, ""))
	expectClose(t, conn, websocket.ClosePolicyViolation)
}

func TestHandleRequiresID(t *testing.T) {
	hub := newTestHub(t)
	srv := startServer(t, hub, HandlerConfig{})
	for _, query := range []string{"", "?id=abc", "?id=0", "?id=1&codec=xml"} {
		resp, err := http.Get(srv.URL + "/" + query)
		if err != nil {
			t.Fatalf("GET %q: %v", query, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("GET %q: expected 400, got %d", query, resp.StatusCode)
		}
	}
}

func TestHandleMessagePackAndObservers(t *testing.T) {
	hub := newTestHub(t)
	join, _ := hub.Join()
	srv := startServer(t, hub, HandlerConfig{})

	observeQuery := url.Values{}
	observeQuery.Set("observe", "1")
	observer := dial(t, srv.URL, observeQuery)
	if frame := readFrame(t, observer, proto.JSON); frame.Type != proto.TypeSnapshot {
		t.Fatalf("expected observer snapshot, got %+v", frame)
	}

	conn := dial(t, srv.URL, playerQuery(join.PlayerID, proto.CodecMessagePack))
	snapshot := readFrame(t, conn, proto.MessagePack)
	if snapshot.Snapshot == nil || len(snapshot.Snapshot.Tiles) != 30 {
		t.Fatalf("expected 30 tiles in msgpack snapshot, got %+v", snapshot.Snapshot)
	}

	sendMove(t, conn, proto.MessagePack, freeNeighbour(t, *snapshot.Snapshot, join.PlayerID))
	if frame := readFrame(t, conn, proto.MessagePack); frame.Type != proto.TypeEvent {
		t.Fatalf("expected event over msgpack, got %+v", frame)
	}
	frame := readFrame(t, observer, proto.JSON)
	if frame.Type != proto.TypeEvent || frame.Event.NewPair == nil {
		t.Fatalf("expected observer to receive the event with its pair, got %+v", frame)
	}
}

func TestHandleRateLimitsMoves(t *testing.T) {
	hub := newTestHub(t)
	join, _ := hub.Join()
	srv := startServer(t, hub, HandlerConfig{MoveRate: 0.001, MoveBurst: 1})
	conn := dial(t, srv.URL, playerQuery(join.PlayerID, ""))

	snapshot := readFrame(t, conn, proto.JSON)
	req := freeNeighbour(t, *snapshot.Snapshot, join.PlayerID)
	sendMove(t, conn, proto.JSON, req)
	accepted := readFrame(t, conn, proto.JSON)
	if accepted.Type != proto.TypeEvent {
		t.Fatalf("expected first move accepted, got %+v", accepted)
	}

	next := req
	next.LastAcceptedRequestID = accepted.Event.LastAcceptedRequestID
	next.DestOccupancyVersion = accepted.Event.DestOccupancyVersion
	sendMove(t, conn, proto.JSON, next)
	limited := readFrame(t, conn, proto.JSON)
	if limited.Type != proto.TypeRejected || limited.Reason != capswalk.ReasonRateLimited {
		t.Fatalf("expected rate-limited rejection, got %+v", limited)
	}
	if limited.Event == nil || limited.Event.LastAcceptedRequestID != next.LastAcceptedRequestID {
		t.Fatalf("rejection must echo the request, got %+v", limited.Event)
	}
}

func TestDisconnectBenchesPlayer(t *testing.T) {
	hub := newTestHub(t)
	join, _ := hub.Join()
	srv := startServer(t, hub, HandlerConfig{})
	conn := dial(t, srv.URL, playerQuery(join.PlayerID, ""))
	readFrame(t, conn, proto.JSON)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, p := range hub.Snapshot().Players {
			if p.ID == join.PlayerID && p.Host.Bench {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected player %d to be benched after disconnect", join.PlayerID)
}
