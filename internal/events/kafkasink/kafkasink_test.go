package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squareoff-engine/internal/types"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishKeysByJob(t *testing.T) {
	w := &fakeWriter{}
	s := &Sink{writer: w, topic: "squareoff.events"}
	at := time.Date(2026, 10, 16, 9, 45, 0, 0, time.UTC)

	run := &types.JobRun{Job: "midnight_cleanup", Sweeps: []types.SweepRun{{Name: "intraday_hold", Closed: 2}}}
	require.NoError(t, s.Publish(context.Background(), types.Event{Kind: types.EventJobRun, Time: at, JobRun: run}))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "midnight_cleanup", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	assert.Equal(t, "JOB_RUN", string(msg.Headers[0].Value))

	var decoded types.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, 2, decoded.JobRun.Totals().Closed)

	require.NoError(t, s.Close())
	assert.True(t, w.closed)
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("leader not available")
	s := &Sink{writer: &fakeWriter{err: boom}, topic: "t"}
	err := s.Publish(context.Background(), types.Event{Kind: types.EventSettlement, Attempt: &types.AttemptResult{Job: "j"}})
	assert.ErrorIs(t, err, boom)
}
