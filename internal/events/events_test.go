package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squareoff-engine/internal/types"
)

type countingSink struct {
	n   int
	err error
}

func (c *countingSink) Publish(context.Context, types.Event) error {
	c.n++
	return c.err
}

func TestMultiPublishesToAllSinks(t *testing.T) {
	boom := errors.New("boom")
	a, b, c := &countingSink{}, &countingSink{err: boom}, &countingSink{}

	err := Multi(a, nil, b, c).Publish(context.Background(), types.Event{Kind: types.EventJobRun})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
	assert.Equal(t, 1, c.n)

	assert.NoError(t, Multi().Publish(context.Background(), types.Event{}))
}

func TestWriterSinkWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf)

	err := s.Publish(context.Background(), types.Event{
		Kind: types.EventSettlement,
		Attempt: &types.AttemptResult{
			Job:       "intraday_squareoff",
			OrderID:   "o1",
			Outcome:   types.OutcomeFailed,
			Error:     "no price",
			Err:       errors.New("no price"),
			ExitPrice: decimal.NewFromInt(10),
		},
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got))
	assert.Equal(t, "SETTLEMENT", got["kind"])
	attempt := got["attempt"].(map[string]any)
	assert.Equal(t, "o1", attempt["order_id"])
	assert.Equal(t, "no price", attempt["error"])
	assert.Equal(t, "10", attempt["exit_price"])
}

type stallingSink struct{}

func (stallingSink) Publish(ctx context.Context, _ types.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestPublishIsBoundedAndDetached(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Publish(ctx, stallingSink{}, types.Event{Kind: types.EventJobRun}, 50*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	c := &countingSink{}
	require.NoError(t, Publish(ctx, c, types.Event{Kind: types.EventJobRun}, 0))
	assert.Equal(t, 1, c.n)
}
