package logging_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging/sinks"
)

type recordingPrinter struct {
	mu    sync.Mutex
	lines []string
}

func (p *recordingPrinter) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, format)
}

func fixedClock() logging.Clock {
	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return logging.ClockFunc(func() time.Time { return stamp })
}

func TestRouterDeliversToSinksOnClose(t *testing.T) {
	memory := sinks.NewMemory()
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityDebug
	cfg.Fields = map[string]any{"service": "rewind"}

	router, err := logging.NewRouter(fixedClock(), cfg, &recordingPrinter{}, []logging.NamedSink{{Name: "memory", Sink: memory}})
	require.NoError(t, err)

	router.Publish(context.Background(), logging.Event{Type: "playback.committed", Tick: 7, Actor: logging.Engine()})
	router.Publish(context.Background(), logging.Event{Type: ""})
	require.NoError(t, router.Close(context.Background()))
	require.NoError(t, router.Close(context.Background()), "second close is a no-op")

	events := memory.Events()
	require.Len(t, events, 1)
	require.Equal(t, uint64(7), events[0].Tick)
	require.Equal(t, "rewind", events[0].Extra["service"])
	require.False(t, events[0].Time.IsZero(), "router stamps events with its clock")
	require.Equal(t, uint64(1), router.Stats().EventsTotal)
	require.Same(t, memory, router.Sink("memory"))
}

func TestRouterFiltersBySeverity(t *testing.T) {
	memory := sinks.NewMemory()
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityWarn

	router, err := logging.NewRouter(fixedClock(), cfg, &recordingPrinter{}, []logging.NamedSink{{Name: "memory", Sink: memory}})
	require.NoError(t, err)

	router.Publish(context.Background(), logging.Event{Type: "debug", Severity: logging.SeverityDebug})
	router.Publish(context.Background(), logging.Event{Type: "warn", Severity: logging.SeverityWarn})
	require.NoError(t, router.Close(context.Background()))

	events := memory.Events()
	require.Len(t, events, 1)
	require.Equal(t, logging.EventType("warn"), events[0].Type)
}

func TestRouterFieldsDoNotOverrideEventExtra(t *testing.T) {
	memory := sinks.NewMemory()
	cfg := logging.DefaultConfig()
	cfg.Fields = map[string]any{"scene": "demo", "commitId": "ignored"}

	router, err := logging.NewRouter(fixedClock(), cfg, &recordingPrinter{}, []logging.NamedSink{{Name: "memory", Sink: memory}})
	require.NoError(t, err)

	extra := map[string]any{"commitId": "c-1"}
	router.Publish(context.Background(), logging.Event{Type: "playback.committed", Extra: extra})
	require.NoError(t, router.Close(context.Background()))

	events := memory.Events()
	require.Len(t, events, 1)
	require.Equal(t, "demo", events[0].Extra["scene"])
	require.Equal(t, "c-1", events[0].Extra["commitId"])
	require.Len(t, extra, 1, "the publisher's map is never written to")
}

type failingSink struct{ writes int }

func (s *failingSink) Write(logging.Event) error {
	s.writes++
	return errors.New("disk full")
}

func (s *failingSink) Close(context.Context) error { return nil }

func TestRouterCountsSinkFailures(t *testing.T) {
	memory := sinks.NewMemory()
	broken := &failingSink{}
	printer := &recordingPrinter{}

	router, err := logging.NewRouter(fixedClock(), logging.DefaultConfig(), printer, []logging.NamedSink{
		{Name: "broken", Sink: broken},
		{Name: "memory", Sink: memory},
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		router.Publish(context.Background(), logging.Event{Type: "lifecycle.entity_removed", Tick: uint64(i)})
	}
	require.NoError(t, router.Close(context.Background()))

	require.Equal(t, 3, broken.writes, "a failing sink keeps receiving events")
	require.Equal(t, 3, memory.Len())
	stats := router.Stats()
	require.Equal(t, uint64(3), stats.SinkFailures)
	require.Equal(t, uint64(3), stats.EventsTotal)

	printer.mu.Lock()
	defer printer.mu.Unlock()
	require.Len(t, printer.lines, 1, "failure warnings are rate limited")
}

func TestEmitSkipsMissingPublisher(t *testing.T) {
	logging.Emit(context.Background(), nil, logging.Event{Type: "x"})

	var seen []logging.EventType
	pub := logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		seen = append(seen, event.Type)
	})
	logging.Emit(context.Background(), pub, logging.Event{})
	logging.Emit(context.Background(), pub, logging.Event{Type: "x"})
	logging.Discard.Publish(context.Background(), logging.Event{Type: "y"})

	require.Equal(t, []logging.EventType{"x"}, seen)
}

func TestParseSeverity(t *testing.T) {
	cases := map[string]logging.Severity{
		"debug":   logging.SeverityDebug,
		"INFO":    logging.SeverityInfo,
		"":        logging.SeverityInfo,
		"warning": logging.SeverityWarn,
		"error":   logging.SeverityError,
	}
	for name, want := range cases {
		got, err := logging.ParseSeverity(name)
		if err != nil {
			t.Fatalf("expected %q to parse, got %v", name, err)
		}
		if got != want {
			t.Fatalf("expected %q to map to %s, got %s", name, want, got)
		}
	}
	if _, err := logging.ParseSeverity("loud"); err == nil {
		t.Fatalf("expected unknown severity to fail")
	}
}

func TestMetricsSnapshotIsACopy(t *testing.T) {
	var metrics logging.Metrics
	metrics.Add("b", 2)
	metrics.Store("a", 9)

	snapshot := metrics.Snapshot()
	snapshot["a"] = 0

	require.Equal(t, uint64(9), metrics.Snapshot()["a"])
	require.Equal(t, []string{"a", "b"}, metrics.Keys())
}
