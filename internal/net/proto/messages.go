package proto

import (
	"encoding/json"
	"fmt"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/sim"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1

	typeStatus        = "status"
	typeCommandAck    = "commandAck"
	typeCommandReject = "commandReject"
	typeHeartbeat     = "heartbeat"
)

// Client message type identifiers.
const (
	TypeBeginPreview  = "beginPreview"
	TypeScrubBy       = "scrubBy"
	TypeScrubTo       = "scrubTo"
	TypeCancel        = "cancel"
	TypeCommit        = "commit"
	TypeResetHistory  = "resetHistory"
	TypeSetTimeScale  = "setTimeScale"
	TypeHoldRewind    = "holdRewind"
	TypeReleaseRewind = "releaseRewind"
	TypeHeartbeat     = typeHeartbeat
)

// TypeStatus identifies outbound status frames.
const TypeStatus = typeStatus

// ClientMessage captures an inbound websocket message from a control client.
type ClientMessage struct {
	Ver    int      `json:"ver,omitempty"`
	Type   string   `json:"type"`
	Millis *int64   `json:"millis,omitempty"`
	Scale  *float64 `json:"scale,omitempty"`
	Cancel bool     `json:"cancel,omitempty"`
	SentAt int64    `json:"sentAt,omitempty"`
	Seq    *uint64  `json:"seq,omitempty"`
}

// DecodeClientMessage converts raw websocket payloads into a structured message.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	return msg, nil
}

// ClientCommand maps a control message onto a loop command. Origin metadata is
// filled in by the intake when the command is staged.
func ClientCommand(msg ClientMessage) (sim.Command, bool) {
	switch msg.Type {
	case TypeBeginPreview:
		return sim.Command{Type: sim.CommandBeginPreview}, true
	case TypeScrubBy, TypeScrubTo:
		if msg.Millis == nil {
			return sim.Command{}, false
		}
		cmdType := sim.CommandScrubBy
		if msg.Type == TypeScrubTo {
			cmdType = sim.CommandScrubTo
		}
		return sim.Command{Type: cmdType, Scrub: &sim.ScrubCommand{Millis: *msg.Millis}}, true
	case TypeCancel:
		return sim.Command{Type: sim.CommandCancel}, true
	case TypeCommit:
		return sim.Command{Type: sim.CommandCommit}, true
	case TypeResetHistory:
		return sim.Command{Type: sim.CommandResetHistory}, true
	case TypeSetTimeScale:
		if msg.Scale == nil {
			return sim.Command{}, false
		}
		return sim.Command{Type: sim.CommandSetTimeScale, TimeScale: &sim.TimeScaleCommand{Scale: *msg.Scale}}, true
	case TypeHoldRewind:
		return sim.Command{Type: sim.CommandHoldRewind}, true
	case TypeReleaseRewind:
		return sim.Command{Type: sim.CommandReleaseRewind, Release: &sim.ReleaseCommand{Cancel: msg.Cancel}}, true
	default:
		return sim.Command{}, false
	}
}

// header prefixes every outbound frame. Encoders fill it in, so callers build
// frames without it.
type header struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
}

func encode(frameType string, h *header, frame any) ([]byte, error) {
	h.Ver = Version
	h.Type = frameType
	return json.Marshal(frame)
}

// StatusFrame wraps the loop status for broadcast.
type StatusFrame struct {
	header
	ServerTime int64      `json:"serverTime"`
	Status     sim.Status `json:"status"`
	Scene      any        `json:"scene,omitempty"`
}

func EncodeStatus(msg StatusFrame) ([]byte, error) {
	return encode(typeStatus, &msg.header, msg)
}

// CommandAck confirms a command was staged for the given tick.
type CommandAck struct {
	header
	Seq       uint64 `json:"seq"`
	Tick      uint64 `json:"tick,omitempty"`
	CommandID string `json:"commandId,omitempty"`
}

func EncodeCommandAck(msg CommandAck) ([]byte, error) {
	return encode(typeCommandAck, &msg.header, msg)
}

// CommandReject notifies the client that a command was refused. Retry is set
// when resending the same command later can succeed.
type CommandReject struct {
	header
	Seq    uint64 `json:"seq"`
	Reason string `json:"reason"`
	Retry  bool   `json:"retry,omitempty"`
}

func EncodeCommandReject(msg CommandReject) ([]byte, error) {
	return encode(typeCommandReject, &msg.header, msg)
}

// Heartbeat echoes the client's clock with the measured round trip.
type Heartbeat struct {
	header
	ServerTime int64 `json:"serverTime"`
	ClientTime int64 `json:"clientTime"`
	RTTMillis  int64 `json:"rtt"`
}

func EncodeHeartbeat(msg Heartbeat) ([]byte, error) {
	return encode(typeHeartbeat, &msg.header, msg)
}
