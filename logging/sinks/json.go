package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/logging"
)

// record is the on-disk layout of one event. Level repeats the severity as a
// name so log shippers can filter without knowing the numeric scale.
type record struct {
	logging.Event
	Level string `json:"level"`
}

// JSON appends one JSON object per event. With a positive flush interval the
// output is buffered and flushed by a background ticker; otherwise every
// event is flushed as it is written.
type JSON struct {
	mu      sync.Mutex
	out     *bufio.Writer
	enc     *json.Encoder
	file    io.Closer
	eager   bool
	done    chan struct{}
	stopped sync.Once
}

// OpenJSONFile appends events to the file at path, creating it if needed.
func OpenJSONFile(path string, flushInterval time.Duration) (*JSON, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open json sink: %w", err)
	}
	sink := NewJSON(file, flushInterval)
	sink.file = file
	return sink, nil
}

func NewJSON(w io.Writer, flushInterval time.Duration) *JSON {
	if w == nil {
		w = io.Discard
	}
	out := bufio.NewWriter(w)
	sink := &JSON{out: out, enc: json.NewEncoder(out), eager: flushInterval <= 0, done: make(chan struct{})}
	if !sink.eager {
		go sink.flushEvery(flushInterval)
	}
	return sink
}

func (s *JSON) Write(event logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(record{Event: event, Level: event.Severity.String()}); err != nil {
		return err
	}
	if s.eager {
		return s.out.Flush()
	}
	return nil
}

// Close stops the flusher, flushes what is buffered and closes the file the
// sink opened. Later calls only flush.
func (s *JSON) Close(context.Context) error {
	s.stopped.Do(func() { close(s.done) })
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.out.Flush()
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
		s.file = nil
	}
	return err
}

func (s *JSON) flushEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			_ = s.out.Flush()
			s.mu.Unlock()
		}
	}
}
