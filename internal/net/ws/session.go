package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	capswalk "github.com/david-fong/capswalk-sub001"
	"github.com/david-fong/capswalk-sub001/internal/game"
	"github.com/david-fong/capswalk-sub001/internal/net/proto"
	"github.com/david-fong/capswalk-sub001/internal/telemetry"
)

// Control frames carry at most 125 bytes, two of which are the close code.
const maxCloseReason = 123

// session is one websocket connection. Frames queued by the hub and by the
// read loop go through a single writer goroutine, so the client sees them in
// the order they were queued.
type session struct {
	conn      *websocket.Conn
	codec     proto.Codec
	out       chan proto.ServerMessage
	done      chan struct{}
	written   chan struct{}
	closeOnce sync.Once
	writeWait time.Duration
	limiter   *rate.Limiter
	recorder  writeRecorder
	logger    telemetry.Logger

	mu        sync.Mutex
	closeCode int
	reason    string

	// Only the read loop touches the duplicate cache.
	lastRequest  *requestKey
	lastResponse proto.ServerMessage
}

type writeRecorder interface {
	RecordWrite(bytes int)
}

// requestKey is the comparable part of a request.
type requestKey struct {
	PlayerID game.PlayerID
	Counter  int64
	Dest     [2]int
	Bench    bool
	Version  uint64
	Epoch    string
}

func keyOf(ev game.MoveEvent) requestKey {
	return requestKey{
		PlayerID: ev.PlayerID,
		Counter:  ev.LastAcceptedRequestID,
		Dest:     [2]int{ev.Dest.X, ev.Dest.Y},
		Bench:    ev.DestBench,
		Version:  ev.DestOccupancyVersion,
		Epoch:    ev.Epoch,
	}
}

func newSession(conn *websocket.Conn, codec proto.Codec, cfg HandlerConfig, recorder writeRecorder) *session {
	s := &session{
		conn:      conn,
		codec:     codec,
		out:       make(chan proto.ServerMessage, cfg.QueueSize),
		done:      make(chan struct{}),
		written:   make(chan struct{}),
		writeWait: cfg.WriteWait,
		recorder:  recorder,
		logger:    cfg.Logger,
		closeCode: websocket.CloseNormalClosure,
	}
	if cfg.MoveRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.MoveRate), cfg.MoveBurst)
	}
	return s
}

// Deliver queues msg without blocking.
func (s *session) Deliver(msg proto.ServerMessage) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- msg:
		return true
	default:
		return false
	}
}

// Close stops the writer after it sends a close frame carrying reason.
func (s *session) Close(reason string) {
	code := websocket.CloseNormalClosure
	switch reason {
	case capswalk.ReasonSlowConsumer:
		code = websocket.CloseTryAgainLater
	case capswalk.ReasonReplaced, capswalk.ReasonRemoved:
		code = websocket.CloseGoingAway
	}
	s.closeWith(code, reason)
}

func (s *session) closeWith(code int, reason string) {
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closeCode = code
		s.reason = reason
		s.mu.Unlock()
		close(s.done)
	})
}

// allow reports whether the move rate limit admits another request.
func (s *session) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// cached returns the response to req when req repeats the last request.
func (s *session) cached(req game.MoveEvent) (proto.ServerMessage, bool) {
	if s.lastRequest == nil || *s.lastRequest != keyOf(req) {
		return proto.ServerMessage{}, false
	}
	return s.lastResponse, true
}

func (s *session) remember(req game.MoveEvent, resp proto.ServerMessage) {
	key := keyOf(req)
	s.lastRequest = &key
	s.lastResponse = resp
}

func (s *session) writeLoop() {
	defer close(s.written)
	for {
		select {
		case msg := <-s.out:
			if err := s.write(msg); err != nil {
				s.closeWith(websocket.CloseAbnormalClosure, err.Error())
				_ = s.conn.Close()
				return
			}
		case <-s.done:
			s.mu.Lock()
			code, reason := s.closeCode, s.reason
			s.mu.Unlock()
			deadline := time.Now().Add(s.writeWait)
			_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
			_ = s.conn.Close()
			return
		}
	}
}

func (s *session) write(msg proto.ServerMessage) error {
	data, err := s.codec.Marshal(msg)
	if err != nil {
		s.logger.Printf("failed to marshal %s frame: %v", msg.Type, err)
		return nil
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
		return err
	}
	if err := s.conn.WriteMessage(s.codec.FrameType(), data); err != nil {
		return err
	}
	if s.recorder != nil {
		s.recorder.RecordWrite(len(data))
	}
	return nil
}

// wait blocks until the writer has exited.
func (s *session) wait() {
	<-s.written
}
