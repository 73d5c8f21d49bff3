package logging_test

import (
	"context"
	"testing"
	"time"

	"github.com/david-fong/capswalk-sub001/logging"
	"github.com/david-fong/capswalk-sub001/logging/sinks"
)

func fixedClock() logging.Clock {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return logging.ClockFunc(func() time.Time { return at })
}

func TestRouterFiltersAndStampsEvents(t *testing.T) {
	memory := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.Fields = map[string]any{"role": "authority"}
	router, err := logging.NewRouter(fixedClock(), cfg, []logging.NamedSink{{Name: logging.SinkMemory, Sink: memory}, {Name: "absent"}})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	metrics := &logging.Metrics{}
	router.AttachMetrics(metrics)

	ctx := context.Background()
	router.Publish(ctx, logging.Event{Type: "movement.rejected", Severity: logging.SeverityDebug, Category: logging.CategoryGameplay})
	router.Publish(ctx, logging.Event{Type: "network.session_opened", Severity: logging.SeverityInfo, Category: logging.CategoryNetwork})
	router.Publish(ctx, logging.Event{Severity: logging.SeverityError})

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := router.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := memory.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 routed event, got %d", len(events))
	}
	got := events[0]
	if got.Type != "network.session_opened" || !got.Time.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.Extra["role"] != "authority" {
		t.Fatalf("expected router fields in extra, got %v", got.Extra)
	}
	if metrics.Value("log_events_routed") != 1 || metrics.Value("log_events_routed_network") != 1 {
		t.Fatalf("unexpected routing metrics %v", metrics.Snapshot())
	}
	if router.Sink(logging.SinkMemory) == nil || router.Sink("absent") != nil {
		t.Fatalf("unexpected sink lookup results")
	}

	router.Publish(ctx, logging.Event{Type: "network.session_closed", Severity: logging.SeverityInfo})
	if stats := router.Stats(); stats.EventsTotal != 1 {
		t.Fatalf("expected publish after close to be ignored, got %+v", stats)
	}
}

func TestNewRouterRejectsNegativeBuffer(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.BufferSize = -1
	if _, err := logging.NewRouter(nil, cfg, nil); err == nil {
		t.Fatalf("expected an error for a negative buffer")
	}
}

func TestWithFieldsKeepsEventExtras(t *testing.T) {
	memory := sinks.NewMemorySink()
	pub := logging.WithFields(memory, map[string]any{"pack": "numpad", "role": "replica"})
	pub.Publish(context.Background(), logging.Event{Type: "tiles.tree_built", Extra: map[string]any{"role": "authority"}})

	events := memory.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Extra["pack"] != "numpad" || events[0].Extra["role"] != "authority" {
		t.Fatalf("unexpected extras %v", events[0].Extra)
	}
}
