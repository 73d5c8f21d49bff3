package proto

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/david-fong/capswalk-sub001/internal/game"
	"github.com/david-fong/capswalk-sub001/internal/grid"
	"github.com/david-fong/capswalk-sub001/internal/lang"
)

func TestCodecsPreserveAcceptedEvent(t *testing.T) {
	score := 3.0
	stockpile := 1.25
	ev := game.MoveEvent{
		PlayerID:              -2,
		LastAcceptedRequestID: 4,
		Dest:                  grid.Coord{X: 3, Y: 1},
		DestOccupancyVersion:  7,
		NewPair:               &lang.Pair{Char: "ぢ", Seq: "ji"},
		NewScore:              &score,
		NewStockpile:          &stockpile,
		EventID:               12,
		Epoch:                 "epoch-a",
	}

	for _, codec := range []Codec{JSON, MessagePack} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Marshal(Event(ev))
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var decoded ServerMessage
			if err := codec.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if decoded.Type != TypeEvent || decoded.Ver != Version {
				t.Fatalf("unexpected envelope: %+v", decoded)
			}
			if decoded.Event == nil || !reflect.DeepEqual(*decoded.Event, ev) {
				t.Fatalf("event changed in transit: %+v", decoded.Event)
			}
		})
	}
}

func TestMessagePackSnapshotKeepsEmbeddedPlayer(t *testing.T) {
	snapshot := game.Snapshot{
		Epoch: "e",
		Phase: game.PhasePlaying,
		Players: []game.PlayerState{{
			Player:       game.Player{ID: 1, Host: game.Location{Coord: grid.Coord{X: 2, Y: 2}}, LastAcceptedRequestID: 3, Score: 4},
			BenchVersion: 2,
		}},
	}
	data, err := MessagePack.Marshal(Snapshot(snapshot))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded ServerMessage
	if err := MessagePack.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Snapshot == nil || len(decoded.Snapshot.Players) != 1 {
		t.Fatalf("expected one player, got %+v", decoded.Snapshot)
	}
	if got := decoded.Snapshot.Players[0]; !reflect.DeepEqual(got, snapshot.Players[0]) {
		t.Fatalf("player changed in transit: %+v", got)
	}
}

func TestCodecByName(t *testing.T) {
	tests := []struct {
		name      string
		frameType int
		err       error
	}{
		{name: "", frameType: websocket.TextMessage},
		{name: CodecJSON, frameType: websocket.TextMessage},
		{name: CodecMessagePack, frameType: websocket.BinaryMessage},
		{name: "xml", err: ErrUnknownCodec},
	}
	for _, tc := range tests {
		codec, err := CodecByName(tc.name)
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Fatalf("%q: expected %v, got %v", tc.name, tc.err, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tc.name, err)
		}
		if codec.FrameType() != tc.frameType {
			t.Fatalf("%q: expected frame type %d, got %d", tc.name, tc.frameType, codec.FrameType())
		}
	}
}

func TestDecodeClientMessage(t *testing.T) {
	t.Run("defaults version", func(t *testing.T) {
		msg, err := DecodeClientMessage(JSON, []byte(`{"type":"move","request":{"playerId":1,"lastAcceptedRequestId":0,"dest":{"x":1,"y":2},"destOccupancyVersion":1}}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Ver != Version {
			t.Fatalf("expected version %d, got %d", Version, msg.Ver)
		}
		if msg.Request.Dest != (grid.Coord{X: 1, Y: 2}) {
			t.Fatalf("unexpected dest %+v", msg.Request.Dest)
		}
	})

	t.Run("rejects other versions", func(t *testing.T) {
		if _, err := DecodeClientMessage(JSON, []byte(`{"ver":9,"type":"ping"}`)); err == nil {
			t.Fatalf("expected version error")
		}
	})

	t.Run("move needs a request", func(t *testing.T) {
		if _, err := DecodeClientMessage(JSON, []byte(`{"type":"move"}`)); err == nil {
			t.Fatalf("expected missing request error")
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := DecodeClientMessage(JSON, []byte(`{`)); err == nil {
			t.Fatalf("expected decode error")
		}
	})
}
