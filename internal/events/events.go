// Package events fans job-run and settlement events out to sinks.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"squareoff-engine/internal/interfaces"
	"squareoff-engine/internal/types"
)

// DefaultPublishTimeout applies when Publish is given no positive timeout.
const DefaultPublishTimeout = 2 * time.Second

// Publish sends event on a context detached from ctx's cancellation, so a
// settlement made just before a deadline is still reported, but bounded by
// timeout so a stalled sink cannot hold the caller.
func Publish(ctx context.Context, sink interfaces.EventSink, event types.Event, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return sink.Publish(ctx, event)
}

type multi struct {
	sinks []interfaces.EventSink
}

// Multi publishes every event to all sinks. A failing sink does not stop the
// others; their errors are joined.
func Multi(sinks ...interfaces.EventSink) interfaces.EventSink {
	var live []interfaces.EventSink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return &multi{sinks: live}
}

func (m *multi) Publish(ctx context.Context, event types.Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriterSink writes each event as one JSON line.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Publish(_ context.Context, event types.Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Kind, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintln(s.w, string(b))
	return err
}
