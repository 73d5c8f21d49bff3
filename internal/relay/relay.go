// Package relay forwards hub frames over Redis pub/sub so replicas in other
// processes can follow the authority without a websocket each.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/david-fong/capswalk-sub001/internal/net/proto"
	"github.com/david-fong/capswalk-sub001/internal/telemetry"
)

const (
	DefaultChannel   = "capswalk:events"
	DefaultQueueSize = 1024
	publishTimeout   = 5 * time.Second

	metricRelayPublished = "relay_published"
	metricRelayFailed    = "relay_publish_failed"
)

// ErrClosed is returned by Next once the subscriber is closed.
var ErrClosed = errors.New("relay: closed")

// Client is the part of a Redis client the relay uses. *redis.Client and
// redis.UniversalClient satisfy it.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Config tunes a Publisher.
type Config struct {
	Channel   string
	QueueSize int
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
}

func (cfg Config) normalized() Config {
	normalized := cfg
	if normalized.Channel == "" {
		normalized.Channel = DefaultChannel
	}
	if normalized.QueueSize <= 0 {
		normalized.QueueSize = DefaultQueueSize
	}
	if normalized.Logger == nil {
		normalized.Logger = telemetry.WrapLogger(log.Default())
	}
	if normalized.Metrics == nil {
		normalized.Metrics = telemetry.WrapMetrics(nil)
	}
	return normalized
}

// Publisher observes the hub and republishes every frame, MessagePack
// encoded, on a Redis channel. Frames are published in the order the hub
// delivered them.
type Publisher struct {
	client  Client
	cfg     Config
	queue   chan proto.ServerMessage
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	failed  atomic.Uint64
}

// NewPublisher starts the publishing goroutine.
func NewPublisher(client Client, cfg Config) *Publisher {
	cfg = cfg.normalized()
	p := &Publisher{
		client:  client,
		cfg:     cfg,
		queue:   make(chan proto.ServerMessage, cfg.QueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go p.run()
	return p
}

// Deliver queues msg without blocking. A full queue drops the frame; the
// receiving replicas notice the gap and back-fill.
func (p *Publisher) Deliver(msg proto.ServerMessage) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.queue <- msg:
		return true
	default:
		return false
	}
}

// Close stops the publisher after the queued frames are flushed.
func (p *Publisher) Close(reason string) {
	p.once.Do(func() {
		close(p.done)
	})
	<-p.stopped
}

// Failed reports how many frames could not be published.
func (p *Publisher) Failed() uint64 {
	return p.failed.Load()
}

func (p *Publisher) run() {
	defer close(p.stopped)
	for {
		select {
		case msg := <-p.queue:
			p.publish(msg)
		case <-p.done:
			for {
				select {
				case msg := <-p.queue:
					p.publish(msg)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) publish(msg proto.ServerMessage) {
	data, err := Encode(msg)
	if err != nil {
		p.fail("encode %s frame: %v", msg.Type, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.cfg.Channel, data).Err(); err != nil {
		p.fail("publish %s frame: %v", msg.Type, err)
		return
	}
	p.cfg.Metrics.Add(metricRelayPublished, 1)
}

func (p *Publisher) fail(format string, args ...any) {
	p.failed.Add(1)
	p.cfg.Metrics.Add(metricRelayFailed, 1)
	p.cfg.Logger.Printf("relay: "+format, args...)
}

// Subscriber reads relayed frames from a Redis channel.
type Subscriber struct {
	pubsub *redis.PubSub
	ch     <-chan *redis.Message
}

// Subscribe joins channel and waits for Redis to confirm the subscription.
func Subscribe(ctx context.Context, client Client, channel string) (*Subscriber, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("relay: subscribe %s: %w", channel, err)
	}
	return &Subscriber{pubsub: pubsub, ch: pubsub.Channel()}, nil
}

// Next blocks for the next frame.
func (s *Subscriber) Next(ctx context.Context) (proto.ServerMessage, error) {
	select {
	case <-ctx.Done():
		return proto.ServerMessage{}, ctx.Err()
	case msg, ok := <-s.ch:
		if !ok {
			return proto.ServerMessage{}, ErrClosed
		}
		return Decode([]byte(msg.Payload))
	}
}

// Close leaves the channel.
func (s *Subscriber) Close() error {
	return s.pubsub.Close()
}

// Encode renders a frame in the relay's wire format.
func Encode(msg proto.ServerMessage) ([]byte, error) {
	return proto.MessagePack.Marshal(msg)
}

// Decode parses a relayed frame.
func Decode(data []byte) (proto.ServerMessage, error) {
	var msg proto.ServerMessage
	if err := proto.MessagePack.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("relay: decode frame: %w", err)
	}
	return msg, nil
}
