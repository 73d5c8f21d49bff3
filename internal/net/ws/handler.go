package ws

import (
	"context"
	"errors"
	"log"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	capswalk "github.com/david-fong/capswalk-sub001"
	"github.com/david-fong/capswalk-sub001/internal/game"
	"github.com/david-fong/capswalk-sub001/internal/net/proto"
	"github.com/david-fong/capswalk-sub001/internal/telemetry"
	"github.com/david-fong/capswalk-sub001/logging"
	loggingNetwork "github.com/david-fong/capswalk-sub001/logging/network"
)

const (
	DefaultQueueSize = 256
	DefaultWriteWait = 10 * time.Second
	DefaultMoveRate  = 20.0
	DefaultMoveBurst = 5
)

// HandlerConfig tunes websocket sessions. MoveRate is the number of move
// requests per second a session may send; zero disables the limit.
type HandlerConfig struct {
	Logger    telemetry.Logger
	QueueSize int
	WriteWait time.Duration
	MoveRate  float64
	MoveBurst int
}

func (cfg HandlerConfig) normalized() HandlerConfig {
	normalized := cfg
	if normalized.Logger == nil {
		normalized.Logger = telemetry.WrapLogger(log.Default())
	}
	if normalized.QueueSize <= 0 {
		normalized.QueueSize = DefaultQueueSize
	}
	if normalized.WriteWait <= 0 {
		normalized.WriteWait = DefaultWriteWait
	}
	if normalized.MoveRate < 0 {
		normalized.MoveRate = 0
	}
	if normalized.MoveBurst <= 0 {
		normalized.MoveBurst = DefaultMoveBurst
	}
	return normalized
}

// Handler upgrades /ws requests. Players connect with ?id=<player id> after
// joining; replicas connect with ?observe=1 and only receive frames. The
// codec query parameter selects json (default) or msgpack framing.
type Handler struct {
	hub       *capswalk.Hub
	cfg       HandlerConfig
	publisher logging.Publisher
	upgrader  websocket.Upgrader
}

func NewHandler(hub *capswalk.Hub, cfg HandlerConfig) *Handler {
	cfg = cfg.normalized()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}
	return &Handler{
		hub:       hub,
		cfg:       cfg,
		publisher: hub.Publisher(),
		upgrader:  upgrader,
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	query := r.URL.Query()
	observe := query.Get("observe") != ""
	var playerID game.PlayerID
	if !observe {
		raw := query.Get("id")
		if raw == "" {
			nethttp.Error(w, "missing id", nethttp.StatusBadRequest)
			return
		}
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed == 0 {
			nethttp.Error(w, "invalid id", nethttp.StatusBadRequest)
			return
		}
		playerID = game.PlayerID(parsed)
	}
	codec, err := proto.CodecByName(query.Get("codec"))
	if err != nil {
		nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.cfg.Logger.Printf("upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	sess := newSession(conn, codec, h.cfg, h.hub)
	go sess.writeLoop()

	if observe {
		h.serveObserver(sess, r.RemoteAddr)
		return
	}
	h.servePlayer(sess, playerID, r.RemoteAddr)
}

func (h *Handler) serveObserver(sess *session, remote string) {
	ctx := context.Background()
	actor := logging.EntityRef{ID: remote, Kind: logging.EntityKindReplica}
	detach := h.hub.Observe(sess)
	loggingNetwork.SessionOpened(ctx, h.publisher, 0, actor, loggingNetwork.SessionPayload{Remote: remote}, nil)

	for {
		_, payload, err := sess.conn.ReadMessage()
		if err != nil {
			break
		}
		msg, err := proto.DecodeClientMessage(sess.codec, payload)
		if err == nil && msg.Type == proto.TypePing {
			sess.Deliver(proto.Pong(msg.SentAt))
		}
	}

	detach()
	sess.Close(capswalk.ReasonDisconnected)
	sess.wait()
	loggingNetwork.SessionClosed(ctx, h.publisher, 0, actor, loggingNetwork.SessionPayload{Remote: remote, Reason: capswalk.ReasonDisconnected}, nil)
}

func (h *Handler) servePlayer(sess *session, playerID game.PlayerID, remote string) {
	ctx := context.Background()
	actor := logging.PlayerRef(int64(playerID))
	if err := h.hub.Subscribe(playerID, sess); err != nil {
		sess.closeWith(websocket.ClosePolicyViolation, capswalk.ReasonUnknownPlayer)
		sess.wait()
		return
	}
	loggingNetwork.SessionOpened(ctx, h.publisher, 0, actor, loggingNetwork.SessionPayload{Remote: remote}, nil)

	reason := capswalk.ReasonDisconnected
loop:
	for {
		_, payload, err := sess.conn.ReadMessage()
		if err != nil {
			break
		}

		msg, err := proto.DecodeClientMessage(sess.codec, payload)
		if err != nil {
			h.cfg.Logger.Printf("discarding malformed message from %d: %v", playerID, err)
			continue
		}

		switch msg.Type {
		case proto.TypePing:
			sess.Deliver(proto.Pong(msg.SentAt))
		case proto.TypeMove:
			req := *msg.Request
			if cached, ok := sess.cached(req); ok {
				h.hub.RecordDuplicate()
				loggingNetwork.DuplicateRequest(ctx, h.publisher, 0, actor, loggingNetwork.DuplicatePayload{
					LastAcceptedRequestID: req.LastAcceptedRequestID,
				}, nil)
				sess.Deliver(cached)
				continue
			}
			if !sess.allow() {
				h.hub.RecordRateLimited()
				sess.Deliver(proto.Rejected(req, capswalk.ReasonRateLimited))
				continue
			}

			resp, err := h.hub.HandleMove(playerID, req)
			if err != nil {
				reason = err.Error()
				code := websocket.CloseInternalServerErr
				if errors.Is(err, game.ErrProtocolViolation) || errors.Is(err, capswalk.ErrNotJoined) {
					code = websocket.ClosePolicyViolation
				}
				sess.closeWith(code, reason)
				break loop
			}
			if resp.Accepted() {
				// The hub already queued the event for every session.
				sess.remember(req, proto.Event(resp))
				continue
			}
			frame := proto.Rejected(resp, "")
			sess.remember(req, frame)
			sess.Deliver(frame)
		default:
			h.cfg.Logger.Printf("unknown message type %q from %d", msg.Type, playerID)
		}
	}

	h.hub.Disconnect(playerID, sess)
	sess.Close(capswalk.ReasonDisconnected)
	sess.wait()
	loggingNetwork.SessionClosed(ctx, h.publisher, 0, actor, loggingNetwork.SessionPayload{Remote: remote, Reason: reason}, nil)
}
