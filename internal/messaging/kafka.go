package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
)

// ModelBuiltEvent announces that a freshly built model was stored and can be
// reloaded by the serving instances.
type ModelBuiltEvent struct {
	BuildID  uuid.UUID `json:"build_id"`
	Model    string    `json:"model"`
	Storage  string    `json:"storage"`
	Users    int       `json:"users,omitempty"`
	Groups   int       `json:"groups,omitempty"`
	Products int       `json:"products,omitempty"`
	BuiltAt  time.Time `json:"built_at"`
}

// Notifier publishes model build notifications.
type Notifier interface {
	PublishModelBuilt(ctx context.Context, event ModelBuiltEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Publisher writes ModelBuiltEvents to the models topic.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *logrus.Logger
}

func NewPublisher(cfg config.KafkaConfig, logger *logrus.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.ModelsTopic,
			Balancer:     &kafka.Hash{}, // Key by model name
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		topic:  cfg.ModelsTopic,
		logger: logger,
	}
}

func (p *Publisher) PublishModelBuilt(ctx context.Context, event ModelBuiltEvent) error {
	if event.BuildID == uuid.Nil {
		event.BuildID = uuid.New()
	}
	if event.BuiltAt.IsZero() {
		event.BuiltAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.Model),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "build_id", Value: []byte(event.BuildID.String())},
			{Key: "model", Value: []byte(event.Model)},
			{Key: "timestamp", Value: []byte(event.BuiltAt.Format(time.RFC3339))},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		p.logger.WithError(err).WithField("build_id", event.BuildID).Error("Failed to publish message to Kafka")
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"build_id": event.BuildID,
		"model":    event.Model,
		"topic":    p.topic,
	}).Info("Model built event published")

	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// NopNotifier is used when no brokers are configured.
type NopNotifier struct{}

func (NopNotifier) PublishModelBuilt(context.Context, ModelBuiltEvent) error { return nil }
func (NopNotifier) Close() error                                             { return nil }

// NewNotifier returns a Kafka publisher, or a no-op when Kafka is disabled.
func NewNotifier(cfg config.KafkaConfig, logger *logrus.Logger) Notifier {
	if !cfg.Enabled() {
		return NopNotifier{}
	}
	return NewPublisher(cfg, logger)
}

// Consumer reads ModelBuiltEvents from the models topic.
type Consumer struct {
	reader     messageReader
	groupID    string
	logger     *logrus.Logger
	maxRetries int
	retryDelay time.Duration
}

// NewConsumer joins a consumer group of its own, derived from the configured
// prefix, so that every serving instance receives every event.
func NewConsumer(cfg config.KafkaConfig, logger *logrus.Logger) *Consumer {
	readerConfig := consumerReaderConfig(cfg)
	logger.WithFields(logrus.Fields{
		"topic":    readerConfig.Topic,
		"group_id": readerConfig.GroupID,
	}).Info("Joining model events consumer group")

	return &Consumer{
		reader:     kafka.NewReader(readerConfig),
		groupID:    readerConfig.GroupID,
		logger:     logger,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

func consumerReaderConfig(cfg config.KafkaConfig) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.ModelsTopic,
		GroupID:        instanceGroupID(cfg.ConsumerGroup),
		MinBytes:       1,
		MaxBytes:       1e6, // 1MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	}
}

func instanceGroupID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// GroupID is the consumer group this instance joined.
func (c *Consumer) GroupID() string {
	return c.groupID
}

// Consume blocks until ctx is done, passing every decodable event to
// handler. Handler failures are retried with exponential backoff and then
// dropped.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, ModelBuiltEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.WithError(err).Error("Failed to read message from Kafka")
				continue
			}

			var event ModelBuiltEvent
			if err := json.Unmarshal(message.Value, &event); err != nil {
				c.logger.WithError(err).Error("Failed to unmarshal Kafka message")
				continue
			}

			if err := c.processWithRetry(ctx, event, handler); err != nil {
				c.logger.WithError(err).WithField("build_id", event.BuildID).Error("Failed to process message after retries")
			}
		}
	}
}

func (c *Consumer) processWithRetry(ctx context.Context, event ModelBuiltEvent, handler func(context.Context, ModelBuiltEvent) error) error {
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			delay := c.retryDelay * time.Duration(1<<uint(attempt-1))
			c.logger.WithFields(logrus.Fields{
				"build_id": event.BuildID,
				"attempt":  attempt,
				"delay":    delay,
			}).Info("Retrying message processing")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := handler(ctx, event); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"build_id": event.BuildID,
				"attempt":  attempt,
			}).Warn("Message processing failed")

			if attempt == c.maxRetries {
				return fmt.Errorf("max retries exceeded: %w", err)
			}
			continue
		}

		c.logger.WithFields(logrus.Fields{
			"build_id": event.BuildID,
			"model":    event.Model,
			"attempt":  attempt,
		}).Info("Message processed successfully")
		return nil
	}

	return fmt.Errorf("unexpected retry loop exit")
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
