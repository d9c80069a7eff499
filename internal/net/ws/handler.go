package ws

import (
	"context"
	nethttp "net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/net/intake"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/net/proto"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/sim"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/telemetry"
)

const defaultStatusInterval = 100 * time.Millisecond

type subscription interface {
	WriteMessage(messageType int, data []byte) error
	LastCommandSeq() uint64
	StoreLastCommandSeq(seq uint64)
}

// Source is the simulation surface the feed reads and controls. *sim.Loop
// satisfies it.
type Source interface {
	Status() sim.Status
	Enqueue(cmd sim.Command) (bool, string)
}

type HandlerConfig struct {
	Logger telemetry.Logger
	// StatusInterval paces status frames. Zero uses 100ms.
	StatusInterval time.Duration
	// Scene, when set, adds a scene summary to every status frame.
	Scene func() any
	Now   func() time.Time
}

// Handler serves the status feed and remote control socket.
type Handler struct {
	source   Source
	logger   telemetry.Logger
	interval time.Duration
	scene    func() any
	now      func() time.Time
	upgrader websocket.Upgrader
}

func NewHandler(source Source, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard
	}
	interval := cfg.StatusInterval
	if interval <= 0 {
		interval = defaultStatusInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		source:   source,
		logger:   logger,
		interval: interval,
		scene:    cfg.Scene,
		now:      now,
		upgrader: upgrader,
	}
}

// Handle upgrades the request and serves the session until the client leaves.
// The optional id query parameter names the controlling client in command
// metadata.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	clientID := r.URL.Query().Get("id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", clientID, err)
		return
	}
	sess := newSession(clientID, conn)
	defer sess.Close()

	if !h.writeStatus(sess) {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.stream(ctx, sess)

	h.serve(clientID, sess, conn)
}

func (h *Handler) stream(ctx context.Context, sess subscription) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !h.writeStatus(sess) {
				return
			}
		}
	}
}

func (h *Handler) serve(clientID string, sess subscription, conn *websocket.Conn) {
	stage := intake.CommandContext{
		Queue: h.source,
		Tick:  func() uint64 { return h.source.Status().Tick },
		Now:   h.now,
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.logger.Printf("discarding malformed message from %s: %v", clientID, err)
			continue
		}

		if msg.Type == proto.TypeHeartbeat {
			now := h.now()
			data, err := proto.EncodeHeartbeat(proto.Heartbeat{
				ServerTime: now.UnixMilli(),
				ClientTime: msg.SentAt,
				RTTMillis:  max(now.UnixMilli()-msg.SentAt, 0),
			})
			if err != nil {
				h.logger.Printf("failed to marshal heartbeat ack for %s: %v", clientID, err)
				continue
			}
			if err := sess.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			continue
		}

		seq := uint64(0)
		if msg.Seq != nil {
			seq = *msg.Seq
		}
		if seq > 0 {
			if last := sess.LastCommandSeq(); last > 0 && seq <= last {
				data, err := proto.EncodeCommandAck(proto.CommandAck{Seq: seq})
				if !h.writeFrame(sess, data, err) {
					return
				}
				continue
			}
		}

		cmd, ok, reason := intake.StageClientCommand(stage, clientID, msg)
		if !ok {
			if reason == sim.CommandRejectInvalid {
				h.logger.Printf("unknown or incomplete %q message from %s", msg.Type, clientID)
			}
			if seq > 0 {
				reject := proto.CommandReject{Seq: seq, Reason: reason, Retry: reason == sim.CommandRejectQueueFull}
				data, err := proto.EncodeCommandReject(reject)
				if !h.writeFrame(sess, data, err) {
					return
				}
			}
			continue
		}
		if seq > 0 {
			ack := proto.CommandAck{Seq: seq, Tick: cmd.OriginTick, CommandID: cmd.ID}
			data, err := proto.EncodeCommandAck(ack)
			if !h.writeFrame(sess, data, err) {
				return
			}
			sess.StoreLastCommandSeq(seq)
		}
	}
}

func (h *Handler) writeStatus(sess subscription) bool {
	frame := proto.StatusFrame{ServerTime: h.now().UnixMilli(), Status: h.source.Status()}
	if h.scene != nil {
		frame.Scene = h.scene()
	}
	data, err := proto.EncodeStatus(frame)
	return h.writeFrame(sess, data, err)
}

// writeFrame sends an encoded frame. It reports false once the connection is
// unusable; encoding failures are logged and skipped.
func (h *Handler) writeFrame(sess subscription, data []byte, err error) bool {
	if err != nil {
		h.logger.Printf("failed to marshal frame: %v", err)
		return true
	}
	return sess.WriteMessage(websocket.TextMessage, data) == nil
}
