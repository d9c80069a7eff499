package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging"
)

func TestConsoleTextFormat(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsole(&buf, logging.ConsoleConfig{Format: "text"})

	err := sink.Write(logging.Event{
		Type:     "lifecycle.entity_removed",
		Tick:     12,
		Time:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Actor:    logging.EntityID(4, "projectile"),
		Severity: logging.SeverityWarn,
		Payload:  map[string]int{"bornAtMillis": 500},
	})
	require.NoError(t, err)

	out := buf.String()
	require.True(t, strings.Contains(out, "lifecycle.entity_removed"), out)
	require.True(t, strings.Contains(out, "actor=\"projectile:4\""), out)
	require.True(t, strings.Contains(out, "level=warning"), out)
	require.True(t, strings.Contains(out, "tick=12"), out)
}

func TestConsoleJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsole(&buf, logging.ConsoleConfig{Format: "json"})

	require.NoError(t, sink.Write(logging.Event{
		Type:    "playback.committed",
		Tick:    3,
		Actor:   logging.Engine(),
		Targets: []logging.EntityRef{logging.EntityID(1, ""), logging.EntityID(2, "enemy")},
	}))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "playback.committed", decoded["msg"])
	require.Equal(t, "engine", decoded["actor"])
	require.Equal(t, "entity:1,enemy:2", decoded["targets"])
	require.Equal(t, "info", decoded["level"])
}

func TestJSONSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSON(&buf, 0)

	require.NoError(t, sink.Write(logging.Event{Type: "a", Tick: 1}))
	require.NoError(t, sink.Write(logging.Event{Type: "b", Tick: 2}))
	require.NoError(t, sink.Close(context.Background()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "a", first["type"])
	require.Equal(t, "debug", first["level"])
	require.Equal(t, float64(1), first["tick"])
}

func TestJSONSinkBuffersUntilClose(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSON(&buf, time.Hour)

	require.NoError(t, sink.Write(logging.Event{Type: "playback.committed", Severity: logging.SeverityInfo}))
	require.Zero(t, buf.Len(), "buffered sinks wait for the flusher")

	require.NoError(t, sink.Close(context.Background()))
	require.True(t, strings.Contains(buf.String(), `"level":"info"`), buf.String())
	require.NoError(t, sink.Close(context.Background()), "close is idempotent")
}

func TestMemoryKeepsIndependentCopies(t *testing.T) {
	sink := NewMemory()
	extra := map[string]any{"commitId": "c1"}
	require.NoError(t, sink.Write(logging.Event{Type: "a", Extra: extra}))
	require.NoError(t, sink.Write(logging.Event{Type: "b"}))
	require.NoError(t, sink.Write(logging.Event{Type: "a"}))
	extra["commitId"] = "mutated"

	matches := sink.OfType("a")
	require.Len(t, matches, 2)
	require.Equal(t, "c1", matches[0].Extra["commitId"])
	matches[0].Extra["commitId"] = "again"

	require.Equal(t, 3, sink.Len())
	require.Equal(t, "c1", sink.Events()[0].Extra["commitId"])
}
