package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/stock-alert-system/internal/metrics"
	"github.com/trogers1052/stock-alert-system/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes alert events to Kafka
type Producer struct {
	writer  messageWriter
	topic   string
	metrics *metrics.Metrics
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string, m *metrics.Metrics) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	return &Producer{
		writer:  writer,
		topic:   topic,
		metrics: m,
	}
}

// PublishAlertTriggered publishes an alert triggered event keyed by symbol
func (p *Producer) PublishAlertTriggered(ctx context.Context, event *models.AlertEvent) error {
	if event.EventType == "" {
		event.EventType = models.EventTypeAlertTriggered
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return p.publish(ctx, event.Symbol, event)
}

func (p *Producer) publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.observe("error")
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	p.observe("ok")
	return nil
}

func (p *Producer) observe(result string) {
	if p.metrics != nil {
		p.metrics.PublishedEvents.WithLabelValues(result).Inc()
	}
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
