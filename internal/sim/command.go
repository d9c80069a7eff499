package sim

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// CommandType enumerates the playback and control commands the loop accepts.
type CommandType string

const (
	CommandBeginPreview  CommandType = "BeginPreview"
	CommandScrubBy       CommandType = "ScrubBy"
	CommandScrubTo       CommandType = "ScrubTo"
	CommandCancel        CommandType = "Cancel"
	CommandCommit        CommandType = "Commit"
	CommandResetHistory  CommandType = "ResetHistory"
	CommandSetTimeScale  CommandType = "SetTimeScale"
	CommandHoldRewind    CommandType = "HoldRewind"
	CommandReleaseRewind CommandType = "ReleaseRewind"
)

// ScrubCommand carries a cursor offset in milliseconds. For ScrubBy negative
// values look further back; for ScrubTo it is the distance behind the present.
type ScrubCommand struct {
	Millis int64 `json:"millis"`
}

// maxScrubMillis is the largest offset representable as a time.Duration.
const maxScrubMillis = math.MaxInt64 / int64(time.Millisecond)

// Duration converts the offset to a time.Duration, saturating instead of
// wrapping for offsets beyond the Duration range.
func (c ScrubCommand) Duration() time.Duration {
	switch {
	case c.Millis > maxScrubMillis:
		return time.Duration(math.MaxInt64)
	case c.Millis < -maxScrubMillis:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(c.Millis) * time.Millisecond
}

// TimeScaleCommand sets the simulation speed multiplier.
type TimeScaleCommand struct {
	Scale float64 `json:"scale"`
}

// ReleaseCommand ends a held rewind. Cancel discards the preview instead of
// committing it.
type ReleaseCommand struct {
	Cancel bool `json:"cancel"`
}

// Command represents an intent captured for processing on the next tick.
type Command struct {
	ID         string            `json:"id"`
	OriginTick uint64            `json:"originTick"`
	ActorID    string            `json:"actorId"`
	Type       CommandType       `json:"type"`
	IssuedAt   time.Time         `json:"issuedAt"`
	Scrub      *ScrubCommand     `json:"scrub,omitempty"`
	TimeScale  *TimeScaleCommand `json:"timeScale,omitempty"`
	Release    *ReleaseCommand   `json:"release,omitempty"`
}

// NewCommand stamps a command of the given type with a fresh correlation id.
func NewCommand(commandType CommandType) Command {
	return Command{ID: uuid.NewString(), Type: commandType}
}
