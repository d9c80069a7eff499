package sim

import (
	"sync"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/telemetry"
)

const (
	commandBufferOccupancyMetricKey = "sim_command_buffer_occupancy"
	commandBufferOverflowMetricKey  = "sim_command_buffer_overflow_total"
)

// CommandBuffer is a fixed-capacity FIFO between input goroutines and the
// loop. Push never grows the ring; a full buffer refuses the command so the
// caller can report backpressure.
type CommandBuffer struct {
	mu      sync.Mutex
	slots   []Command
	head    int
	size    int
	metrics telemetry.Metrics
}

// NewCommandBuffer allocates capacity slots, at least one.
func NewCommandBuffer(capacity int, metrics telemetry.Metrics) *CommandBuffer {
	return &CommandBuffer{
		slots:   make([]Command, max(capacity, 1)),
		metrics: metrics,
	}
}

func (b *CommandBuffer) Capacity() int {
	if b == nil {
		return 0
	}
	return len(b.slots)
}

// Push appends cmd and reports whether there was room for it.
func (b *CommandBuffer) Push(cmd Command) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size == len(b.slots) {
		b.record(commandBufferOverflowMetricKey, 1, true)
		return false
	}
	b.slots[(b.head+b.size)%len(b.slots)] = cmd
	b.size++
	b.record(commandBufferOccupancyMetricKey, uint64(b.size), false)
	return true
}

// Drain hands every staged command to the caller, oldest first, and empties
// the ring. Slots are zeroed so drained payloads can be collected.
func (b *CommandBuffer) Drain() []Command {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size == 0 {
		return nil
	}
	out := make([]Command, 0, b.size)
	first := b.slots[b.head:min(b.head+b.size, len(b.slots))]
	out = append(out, first...)
	out = append(out, b.slots[:b.size-len(first)]...)
	clear(b.slots)
	b.head = (b.head + b.size) % len(b.slots)
	b.size = 0
	b.record(commandBufferOccupancyMetricKey, 0, false)
	return out
}

// Len reports the number of staged commands.
func (b *CommandBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *CommandBuffer) record(key string, value uint64, counter bool) {
	switch {
	case b.metrics == nil:
	case counter:
		b.metrics.Add(key, value)
	default:
		b.metrics.Store(key, value)
	}
}
