package telemetry

import (
	"bytes"
	"log"
	"testing"

	"github.com/david-fong/capswalk-sub001/logging"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		base := log.New(&buf, "", 0)
		logger := WrapLogger(base)
		logger.Printf("hello %s", "world")
		if got := buf.String(); got != "hello world\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
		provider, ok := logger.(interface{ StandardLogger() *log.Logger })
		if !ok || provider.StandardLogger() != base {
			t.Fatalf("expected wrapped logger to expose the base logger")
		}
	})
}

func TestWrapMetrics(t *testing.T) {
	metrics := logging.Metrics{}
	adapter := WrapMetrics(&metrics)

	adapter.Add("test_counter", 2)
	adapter.Store("test_counter", 5)
	adapter.Add("test_counter", 3)

	snapshot := Snapshot(adapter)
	if got := snapshot["test_counter"]; got != 8 {
		t.Fatalf("unexpected metric value: %d", got)
	}

	// Ensure nil metrics do not panic.
	var nilAdapter Metrics = WrapMetrics(nil)
	nilAdapter.Add("ignored", 1)
	nilAdapter.Store("ignored", 1)
	if got := Snapshot(nilAdapter); len(got) != 0 {
		t.Fatalf("expected empty snapshot from nil metrics, got %v", got)
	}
}

func TestJournalDrops(t *testing.T) {
	metrics := logging.Metrics{}
	drops := JournalDrops{Metrics: WrapMetrics(&metrics)}
	drops.RecordJournalDrop("journal_duplicate")
	drops.RecordJournalDrop("journal_duplicate")
	drops.RecordJournalDrop("")

	if got := metrics.Value("journal_duplicate"); got != 2 {
		t.Fatalf("expected 2 duplicate drops, got %d", got)
	}
	if keys := metrics.Keys(); len(keys) != 1 {
		t.Fatalf("expected a single metric key, got %v", keys)
	}

	JournalDrops{}.RecordJournalDrop("journal_duplicate")
}
