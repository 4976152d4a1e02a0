// Package kafkasink publishes events to a Kafka topic as JSON, keyed by job.
package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"squareoff-engine/internal/interfaces"
	"squareoff-engine/internal/logger"
	"squareoff-engine/internal/types"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Sink struct {
	writer messageWriter
	topic  string
}

var _ interfaces.EventSink = (*Sink)(nil)

func New(brokers []string, topic string) *Sink {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteBackoffMin:        100 * time.Millisecond,
		WriteBackoffMax:        time.Second,
	}
	logger.Info(context.Background(), "Kafka event sink created", "brokers", brokers, "topic", topic)
	return &Sink{writer: w, topic: topic}
}

func (s *Sink) Publish(ctx context.Context, event types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Key()),
		Value: data,
		Time:  event.Time,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(event.Kind)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish to %s: %w", s.topic, err)
	}
	logger.Debug(ctx, "Kafka event sent", "topic", s.topic, "kind", event.Kind, "key", event.Key())
	return nil
}

func (s *Sink) Close() error {
	return s.writer.Close()
}
