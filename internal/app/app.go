// Package app wires the authority server and the replica follower from
// environment configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	capswalk "github.com/david-fong/capswalk-sub001"
	servernet "github.com/david-fong/capswalk-sub001/internal/net"
	"github.com/david-fong/capswalk-sub001/internal/net/proto"
	"github.com/david-fong/capswalk-sub001/internal/relay"
	"github.com/david-fong/capswalk-sub001/internal/replica"
	"github.com/david-fong/capswalk-sub001/internal/telemetry"
	"github.com/david-fong/capswalk-sub001/logging"
	loggingSinks "github.com/david-fong/capswalk-sub001/logging/sinks"
)

const closeTimeout = 5 * time.Second

type observed struct {
	router  *logging.Router
	metrics *logging.Metrics
	logger  telemetry.Logger
	close   func()
}

// newObserved builds the logging router every binary publishes into.
func newObserved(cfg LogConfig, role string) (*observed, error) {
	logger := telemetry.WrapLogger(log.Default())
	logCfg := cfg.Logging(map[string]any{"role": role})
	named, closeFiles, err := loggingSinks.Build(logCfg, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to build log sinks: %w", err)
	}
	router, err := logging.NewRouter(logging.ClockFunc(time.Now), logCfg, named)
	if err != nil {
		_ = closeFiles()
		return nil, fmt.Errorf("failed to construct logging router: %w", err)
	}
	metrics := &logging.Metrics{}
	router.AttachMetrics(metrics)
	return &observed{
		router:  router,
		metrics: metrics,
		logger:  logger,
		close: func() {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := router.Close(ctx); err != nil {
				logger.Printf("failed to close logging router: %v", err)
			}
			if err := closeFiles(); err != nil {
				logger.Printf("failed to close log files: %v", err)
			}
		},
	}, nil
}

// Run listens on cfg.Addr and serves until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	return Serve(ctx, ln, cfg)
}

// Serve runs the authority on ln until ctx ends, then shuts down gracefully.
func Serve(ctx context.Context, ln net.Listener, cfg Config) error {
	obs, err := newObserved(cfg.Log, "authority")
	if err != nil {
		ln.Close()
		return err
	}
	defer obs.close()

	hubCfg, err := cfg.Hub()
	if err != nil {
		ln.Close()
		return fmt.Errorf("invalid game config: %w", err)
	}
	hubCfg.Logger = obs.logger
	hubCfg.Publisher = obs.router
	hubCfg.Metrics = obs.metrics

	hub, err := capswalk.NewHub(hubCfg)
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to start hub: %w", err)
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			ln.Close()
			return fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		publisher := relay.NewPublisher(rdb, relay.Config{
			Channel: cfg.RedisChannel,
			Logger:  obs.logger,
			Metrics: telemetry.WrapMetrics(obs.metrics),
		})
		detach := hub.Observe(publisher)
		defer publisher.Close("shutdown")
		defer detach()
		obs.logger.Printf("relaying frames to redis %s channel %s", cfg.RedisAddr, cfg.RedisChannel)
	}

	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		ClientDir:     resolveClientDir(cfg.ClientDir),
		Logger:        obs.logger,
		WS:            cfg.WS(),
		Observability: cfg.Observability(),
	})

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	obs.logger.Printf("server listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = closeTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// RunReplica follows the authority until ctx ends. Frames come from Redis
// when RedisAddr is set and from the authority's websocket otherwise.
func RunReplica(ctx context.Context, cfg ReplicaConfig) error {
	obs, err := newObserved(cfg.Log, "replica")
	if err != nil {
		return err
	}
	defer obs.close()

	client := replica.New(replica.Config{
		BaseURL:   cfg.AuthorityURL,
		Backlog:   cfg.Backlog,
		Logger:    obs.logger,
		Publisher: obs.router,
		Metrics:   telemetry.WrapMetrics(obs.metrics),
	})

	var src replica.Source
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		sub, err := relay.Subscribe(ctx, rdb, cfg.RedisChannel)
		if err != nil {
			return err
		}
		src = replica.RelaySource(sub)
		if err := client.Bootstrap(ctx); err != nil {
			src.Close()
			return fmt.Errorf("bootstrap: %w", err)
		}
	} else {
		codec, err := proto.CodecByName(cfg.Codec)
		if err != nil {
			return err
		}
		src, err = replica.DialWebsocket(ctx, cfg.AuthorityURL, codec)
		if err != nil {
			return err
		}
	}

	if cfg.ReportInterval > 0 {
		go report(ctx, client, obs.logger, cfg.ReportInterval)
	}
	obs.logger.Printf("replica following %s", cfg.AuthorityURL)
	err = client.Run(ctx, src)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func report(ctx context.Context, client *replica.Client, logger telemetry.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot, err := client.Snapshot()
			if err != nil {
				logger.Printf("replica waiting for snapshot")
				continue
			}
			logger.Printf("replica epoch=%s phase=%s delivered=%d players=%d", snapshot.Epoch, snapshot.Phase, client.Delivered(), len(snapshot.Players))
		}
	}
}
