// Package stream publishes emitted intents to Kafka so downstream
// consumers (dashboards, maps, archives) can react to alerts without
// touching the delivery path.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"quakewatch/internal/pipeline"
)

const (
	// DefaultTopic is the topic emitted intents are published to.
	DefaultTopic = "quakewatch.intents"
	// writeTimeout is the maximum time to wait for a Kafka write operation.
	writeTimeout = 10 * time.Second
)

// intentWriter lets tests substitute the Kafka writer.
type intentWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes dispatch intents to a Kafka topic.
type Publisher struct {
	writer intentWriter
	topic  string
}

// NewPublisher creates a Kafka publisher for the given comma-separated
// broker list and topic. Writes are synchronous and wait for leader ack.
func NewPublisher(brokers, topic string) (*Publisher, error) {
	if brokers == "" {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		topic = DefaultTopic
	}

	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}

	slog.Info("Initializing Kafka intent publisher",
		"brokers", brokerList,
		"topic", topic,
	)

	// Key by event id so all intents for one event land on one partition
	// and consumers see them in order.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerList...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &Publisher{writer: writer, topic: topic}, nil
}

// newPublisherWithWriter is used by tests.
func newPublisherWithWriter(w intentWriter, topic string) *Publisher {
	return &Publisher{writer: w, topic: topic}
}

// Publish serializes the intents and publishes them in one batch write.
// Test intents are never published; they exist only for delivery checks.
func (p *Publisher) Publish(ctx context.Context, intents []pipeline.Intent) error {
	msgs := make([]kafka.Message, 0, len(intents))
	for i := range intents {
		intent := &intents[i]
		if intent.IsTest {
			continue
		}

		payload, err := json.Marshal(intent)
		if err != nil {
			return fmt.Errorf("failed to marshal intent %s: %w", intent.IntentID, err)
		}

		msgs = append(msgs, kafka.Message{
			Key:   []byte(intent.EventID),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "intent_id", Value: []byte(intent.IntentID)},
				{Key: "channel", Value: []byte(intent.ChannelName)},
			},
		})
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		slog.Error("Failed to write intents to Kafka",
			"topic", p.topic,
			"count", len(msgs),
			"error", err,
		)
		return fmt.Errorf("failed to write intents to Kafka: %w", err)
	}

	slog.Debug("Published intents", "topic", p.topic, "count", len(msgs))
	return nil
}

// Close gracefully closes the Kafka writer.
func (p *Publisher) Close() error {
	slog.Info("Closing Kafka intent publisher", "topic", p.topic)
	return p.writer.Close()
}
