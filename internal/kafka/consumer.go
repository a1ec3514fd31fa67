package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/stock-alert-system/internal/models"
	"go.uber.org/zap"
)

// Triggerer queues an evaluation pass
type Triggerer interface {
	Trigger(source string) bool
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
	Config() kafka.ReaderConfig
}

// TriggerConsumer turns check-alerts events into pass requests
type TriggerConsumer struct {
	reader  messageReader
	trigger Triggerer
	source  string
	log     *zap.Logger
}

// NewTriggerConsumer creates a consumer for the trigger topic
func NewTriggerConsumer(brokers []string, topic, groupID string, trigger Triggerer, source string, log *zap.Logger) *TriggerConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       1e6, // 1MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return &TriggerConsumer{
		reader:  reader,
		trigger: trigger,
		source:  source,
		log:     log,
	}
}

// Start consumes messages until ctx is done
func (c *TriggerConsumer) Start(ctx context.Context) error {
	c.log.Info("starting kafka trigger consumer", zap.String("topic", c.reader.Config().Topic))

	for {
		select {
		case <-ctx.Done():
			c.log.Info("kafka trigger consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return c.reader.Close()
				}
				c.log.Warn("error reading trigger message", zap.Error(err))
				continue
			}

			if err := c.processMessage(msg); err != nil {
				c.log.Warn("error processing trigger message",
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
		}
	}
}

// processMessage queues a pass for check-alerts events and ignores the rest
func (c *TriggerConsumer) processMessage(msg kafka.Message) error {
	var event models.TriggerEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal trigger event: %w", err)
	}

	if event.EventType != models.EventTypeCheckAlerts {
		c.log.Debug("ignoring event type", zap.String("event_type", event.EventType))
		return nil
	}

	queued := c.trigger.Trigger(c.source)
	c.log.Info("received alert check request",
		zap.String("origin", event.Source),
		zap.Bool("queued", queued),
	)
	return nil
}

// Close closes the reader
func (c *TriggerConsumer) Close() error {
	return c.reader.Close()
}
