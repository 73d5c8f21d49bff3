package replica

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/david-fong/capswalk-sub001/internal/net/proto"
	"github.com/david-fong/capswalk-sub001/internal/relay"
)

// Source yields the authority's frames in the order it sent them.
type Source interface {
	Next(ctx context.Context) (proto.ServerMessage, error)
	Close() error
}

// ErrSourceClosed is returned by Next after Close.
var ErrSourceClosed = errors.New("replica: source closed")

const dialAttempts = 5

type wsSource struct {
	conn      *websocket.Conn
	codec     proto.Codec
	closeOnce sync.Once
	closed    chan struct{}
}

// DialWebsocket connects to the authority's /ws endpoint as an observer.
// baseURL is the server's http or ws root. Dialing is retried with
// exponential backoff.
func DialWebsocket(ctx context.Context, baseURL string, codec proto.Codec) (Source, error) {
	if codec == nil {
		codec = proto.JSON
	}
	target, err := observerURL(baseURL, codec)
	if err != nil {
		return nil, err
	}
	conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(fmt.Errorf("replica: dial %s: status %d", target, resp.StatusCode))
		}
		return conn, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(dialAttempts))
	if err != nil {
		return nil, fmt.Errorf("replica: dial %s: %w", target, err)
	}
	return &wsSource{conn: conn, codec: codec, closed: make(chan struct{})}, nil
}

func observerURL(baseURL string, codec proto.Codec) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("replica: parse %q: %w", baseURL, err)
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("replica: unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	query := url.Values{}
	query.Set("observe", "1")
	query.Set("codec", codec.Name())
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (s *wsSource) Next(ctx context.Context) (proto.ServerMessage, error) {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetReadDeadline(deadline)
	} else {
		s.conn.SetReadDeadline(time.Time{})
	}
	_, payload, err := s.conn.ReadMessage()
	if err != nil {
		select {
		case <-s.closed:
			return proto.ServerMessage{}, ErrSourceClosed
		default:
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return proto.ServerMessage{}, ctxErr
		}
		return proto.ServerMessage{}, err
	}
	var msg proto.ServerMessage
	if err := s.codec.Unmarshal(payload, &msg); err != nil {
		return proto.ServerMessage{}, fmt.Errorf("replica: decode frame: %w", err)
	}
	return msg, nil
}

func (s *wsSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		deadline := time.Now().Add(time.Second)
		s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replica closed"), deadline)
		err = s.conn.Close()
	})
	return err
}

type relaySource struct {
	sub *relay.Subscriber
}

// RelaySource adapts a Redis relay subscription.
func RelaySource(sub *relay.Subscriber) Source {
	return relaySource{sub: sub}
}

func (s relaySource) Next(ctx context.Context) (proto.ServerMessage, error) {
	msg, err := s.sub.Next(ctx)
	if errors.Is(err, relay.ErrClosed) {
		return msg, ErrSourceClosed
	}
	return msg, err
}

func (s relaySource) Close() error {
	return s.sub.Close()
}
