package net

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	capswalk "github.com/david-fong/capswalk-sub001"
	"github.com/david-fong/capswalk-sub001/internal/game"
	"github.com/david-fong/capswalk-sub001/internal/net/proto"
)

func newTestHub(t *testing.T) *capswalk.Hub {
	t.Helper()
	cfg := capswalk.DefaultHubConfig()
	cfg.Game.Width = 6
	cfg.Game.Height = 5
	cfg.Game.Humans = 1
	hub, err := capswalk.NewHub(cfg)
	if err != nil {
		t.Fatalf("NewHub: %v", err)
	}
	return hub
}

func serve(t *testing.T, handler http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder, out any) {
	t.Helper()
	if contentType := resp.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", contentType)
	}
	if err := json.Unmarshal(resp.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode payload %s: %v", resp.Body.String(), err)
	}
}

func TestHTTPHealth(t *testing.T) {
	handler := NewHTTPHandler(newTestHub(t), HTTPHandlerConfig{})
	resp := serve(t, handler, http.MethodGet, "/health", nil)
	if resp.Code != http.StatusOK || resp.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", resp.Code, resp.Body.String())
	}
}

func TestHTTPJoin(t *testing.T) {
	handler := NewHTTPHandler(newTestHub(t), HTTPHandlerConfig{})

	resp := serve(t, handler, http.MethodPost, "/join", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	var join proto.JoinResponse
	decode(t, resp, &join)
	if join.PlayerID != 1 || join.Snapshot.Epoch == "" || len(join.Snapshot.Tiles) != 30 {
		t.Fatalf("unexpected join payload: id=%d epoch=%q tiles=%d", join.PlayerID, join.Snapshot.Epoch, len(join.Snapshot.Tiles))
	}

	if resp := serve(t, handler, http.MethodPost, "/join", nil); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 once the roster is full, got %d", resp.Code)
	}
	if resp := serve(t, handler, http.MethodGet, "/join", nil); resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET /join, got %d", resp.Code)
	}
}

func TestHTTPResetAndEvents(t *testing.T) {
	hub := newTestHub(t)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})
	join, _ := hub.Join()

	before := hub.Snapshot()
	var req game.MoveEvent
	for _, tile := range before.Tiles {
		host := before.Players[indexOf(before, join.PlayerID)].Host
		if tile.Occupant == 0 && tile.Coord.InfDist(host.Coord) == 1 {
			req = game.MoveEvent{PlayerID: join.PlayerID, LastAcceptedRequestID: -1, Dest: tile.Coord, DestOccupancyVersion: tile.OccupancyVersion, Epoch: before.Epoch}
			break
		}
	}
	if resp, err := hub.HandleMove(join.PlayerID, req); err != nil || !resp.Accepted() {
		t.Fatalf("expected accepted move, got %+v (%v)", resp, err)
	}

	resp := serve(t, handler, http.MethodGet, "/events?since=0", nil)
	var events proto.EventsResponse
	decode(t, resp, &events)
	if len(events.Events) != 1 || events.Events[0].EventID != 1 || events.Epoch != before.Epoch {
		t.Fatalf("unexpected events payload: %+v", events)
	}
	if resp := serve(t, handler, http.MethodGet, "/events?since=-4", nil); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a negative since, got %d", resp.Code)
	}

	resp = serve(t, handler, http.MethodPost, "/game/reset", []byte(`{"seed":"other","width":8,"pack":"numpad"}`))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected reset to succeed, got %d: %s", resp.Code, resp.Body.String())
	}
	var reset struct {
		Status string      `json:"status"`
		Epoch  string      `json:"epoch"`
		Pack   string      `json:"pack"`
		Config game.Config `json:"config"`
	}
	decode(t, resp, &reset)
	if reset.Epoch == before.Epoch || reset.Pack != "numpad" || reset.Config.Width != 8 || reset.Config.Seed != "other" {
		t.Fatalf("unexpected reset payload: %+v", reset)
	}

	var snapshot game.Snapshot
	decode(t, serve(t, handler, http.MethodGet, "/snapshot", nil), &snapshot)
	if snapshot.Epoch != reset.Epoch || snapshot.Config.Width != 8 || len(snapshot.Tiles) != 40 {
		t.Fatalf("unexpected snapshot: epoch=%q width=%d tiles=%d", snapshot.Epoch, snapshot.Config.Width, len(snapshot.Tiles))
	}

	resp = serve(t, handler, http.MethodGet, "/events", nil)
	decode(t, resp, &events)
	if len(events.Events) != 0 || events.Epoch != reset.Epoch {
		t.Fatalf("expected empty record for the new epoch, got %+v", events)
	}

	if resp := serve(t, handler, http.MethodPost, "/game/reset", []byte(`{"width":-1}`)); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an invalid reset, got %d", resp.Code)
	}
	if resp := serve(t, handler, http.MethodPost, "/game/reset", []byte(`{"pack":"klingon"}`)); resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for an unknown pack, got %d", resp.Code)
	}
}

func TestHTTPPhase(t *testing.T) {
	hub := newTestHub(t)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})

	resp := serve(t, handler, http.MethodPost, "/game/phase", []byte(`{"phase":"over"}`))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if got := hub.Snapshot().Phase; got != game.PhaseOver {
		t.Fatalf("expected phase over, got %q", got)
	}
	if resp := serve(t, handler, http.MethodPost, "/game/phase", []byte(`{"phase":"later"}`)); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown phase, got %d", resp.Code)
	}
}

func TestHTTPLangPacksAndDiagnostics(t *testing.T) {
	hub := newTestHub(t)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})

	var packsPayload struct {
		Current string `json:"current"`
		Packs   []struct {
			Name       string `json:"name"`
			Characters int    `json:"characters"`
		} `json:"packs"`
	}
	decode(t, serve(t, handler, http.MethodGet, "/lang/packs", nil), &packsPayload)
	if packsPayload.Current != "en-lowercase" || len(packsPayload.Packs) != 3 {
		t.Fatalf("unexpected packs payload: %+v", packsPayload)
	}

	var diag struct {
		Status string `json:"status"`
		Hub    struct {
			Epoch   string `json:"epoch"`
			Phase   string `json:"phase"`
			Players []struct {
				ID      int64 `json:"id"`
				Claimed bool  `json:"claimed"`
			} `json:"players"`
		} `json:"hub"`
	}
	decode(t, serve(t, handler, http.MethodGet, "/diagnostics", nil), &diag)
	if diag.Status != "ok" || diag.Hub.Phase != string(game.PhasePlaying) || len(diag.Hub.Players) != 1 {
		t.Fatalf("unexpected diagnostics payload: %+v", diag)
	}
}

func indexOf(snapshot game.Snapshot, id game.PlayerID) int {
	for i, p := range snapshot.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}
