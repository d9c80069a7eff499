package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/net/proto"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/rewind"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/sim"
)

type fakeSource struct {
	mu       sync.Mutex
	status   sim.Status
	commands []sim.Command
	full     bool
}

func (f *fakeSource) Status() sim.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSource) Enqueue(cmd sim.Command) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false, sim.CommandRejectQueueFull
	}
	f.commands = append(f.commands, cmd)
	return true, ""
}

func (f *fakeSource) staged() []sim.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sim.Command(nil), f.commands...)
}

type frame struct {
	Type      string          `json:"type"`
	Seq       uint64          `json:"seq"`
	Tick      uint64          `json:"tick"`
	CommandID string          `json:"commandId"`
	Reason    string          `json:"reason"`
	Retry     bool            `json:"retry"`
	Status    json.RawMessage `json:"status"`
	Scene     json.RawMessage `json:"scene"`
}

func dial(t *testing.T, handler *Handler, id string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("failed to parse server url: %v", err)
	}
	u.Scheme = "ws"
	if id != "" {
		u.RawQuery = url.Values{"id": []string{id}}.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	t.Cleanup(func() {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		if resp != nil {
			resp.Body.Close()
		}
	})
	return conn
}

// readFrame returns the next frame that is not a status frame unless a status
// frame is wanted.
func readFrame(t *testing.T, conn *websocket.Conn, wantType string) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("failed to read frame: %v", err)
		}
		var f frame
		if err := json.Unmarshal(payload, &f); err != nil {
			t.Fatalf("failed to decode frame %s: %v", payload, err)
		}
		if f.Type == wantType {
			return f
		}
		if f.Type != proto.TypeStatus {
			t.Fatalf("expected %s frame, got %s", wantType, payload)
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("failed to send %s: %v", msg, err)
	}
}

func TestHandleSendsInitialStatus(t *testing.T) {
	source := &fakeSource{status: sim.Status{Status: rewind.Status{Tick: 12, Mode: "recording"}, TimeScale: 1}}
	handler := NewHandler(source, HandlerConfig{
		StatusInterval: time.Hour,
		Scene:          func() any { return map[string]int{"live": 3} },
	})
	conn := dial(t, handler, "")

	f := readFrame(t, conn, proto.TypeStatus)
	var status sim.Status
	if err := json.Unmarshal(f.Status, &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.Tick != 12 || status.Mode != "recording" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if string(f.Scene) != `{"live":3}` {
		t.Fatalf("expected scene summary, got %s", f.Scene)
	}
}

func TestHandleStreamsStatus(t *testing.T) {
	source := &fakeSource{}
	handler := NewHandler(source, HandlerConfig{StatusInterval: 10 * time.Millisecond})
	conn := dial(t, handler, "")

	readFrame(t, conn, proto.TypeStatus)
	readFrame(t, conn, proto.TypeStatus)
}

func TestHandleAcksAndStagesCommands(t *testing.T) {
	source := &fakeSource{status: sim.Status{Status: rewind.Status{Tick: 30}}}
	handler := NewHandler(source, HandlerConfig{StatusInterval: time.Hour})
	conn := dial(t, handler, "console-7")
	readFrame(t, conn, proto.TypeStatus)

	send(t, conn, `{"type":"beginPreview","seq":1}`)
	ack := readFrame(t, conn, "commandAck")
	if ack.Seq != 1 || ack.Tick != 30 || ack.CommandID == "" {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	send(t, conn, `{"type":"scrubTo","millis":750,"seq":2}`)
	readFrame(t, conn, "commandAck")

	// A replayed sequence number is acknowledged but not staged again.
	send(t, conn, `{"type":"scrubTo","millis":750,"seq":2}`)
	dup := readFrame(t, conn, "commandAck")
	if dup.Seq != 2 {
		t.Fatalf("expected duplicate ack for seq 2, got %+v", dup)
	}

	staged := source.staged()
	if len(staged) != 2 {
		t.Fatalf("expected 2 staged commands, got %d", len(staged))
	}
	if staged[0].Type != sim.CommandBeginPreview || staged[0].ActorID != "console-7" {
		t.Fatalf("unexpected first command: %+v", staged[0])
	}
	if staged[1].Scrub == nil || staged[1].Scrub.Millis != 750 {
		t.Fatalf("unexpected scrub command: %+v", staged[1])
	}
	if staged[0].ID != ack.CommandID {
		t.Fatalf("expected ack to carry command id %s, got %s", staged[0].ID, ack.CommandID)
	}
}

func TestHandleRejectsCommands(t *testing.T) {
	source := &fakeSource{}
	handler := NewHandler(source, HandlerConfig{StatusInterval: time.Hour})
	conn := dial(t, handler, "")
	readFrame(t, conn, proto.TypeStatus)

	send(t, conn, `{"type":"setTimeScale","seq":1}`)
	reject := readFrame(t, conn, "commandReject")
	if reject.Reason != sim.CommandRejectInvalid || reject.Retry {
		t.Fatalf("unexpected invalid reject: %+v", reject)
	}

	source.mu.Lock()
	source.full = true
	source.mu.Unlock()
	send(t, conn, `{"type":"commit","seq":2}`)
	reject = readFrame(t, conn, "commandReject")
	if reject.Reason != sim.CommandRejectQueueFull || !reject.Retry {
		t.Fatalf("unexpected queue reject: %+v", reject)
	}
	if len(source.staged()) != 0 {
		t.Fatalf("expected nothing staged")
	}
}

func TestHandleEchoesHeartbeat(t *testing.T) {
	now := time.UnixMilli(5000)
	handler := NewHandler(&fakeSource{}, HandlerConfig{
		StatusInterval: time.Hour,
		Now:            func() time.Time { return now },
	})
	conn := dial(t, handler, "")
	readFrame(t, conn, proto.TypeStatus)

	send(t, conn, `{"type":"heartbeat","sentAt":4900}`)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read heartbeat: %v", err)
	}
	var hb struct {
		Type string `json:"type"`
		RTT  int64  `json:"rtt"`
	}
	if err := json.Unmarshal(payload, &hb); err != nil {
		t.Fatalf("failed to decode heartbeat: %v", err)
	}
	if hb.Type != "heartbeat" || hb.RTT != 100 {
		t.Fatalf("unexpected heartbeat: %+v", hb)
	}
}
