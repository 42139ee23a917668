// Package kafka carries search analytics events over segmentio/kafka-go.
// The producer batches JSON-encoded events; the consumer hands raw values to
// a MessageHandler and commits what it handled.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/config"
)

const (
	minFetchBackoff = 100 * time.Millisecond
	maxFetchBackoff = 5 * time.Second
)

// MessageHandler is invoked for each message. A returned error leaves the
// message uncommitted; later commits on the partition still move past it.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerStats counts what a consumer has seen since Start.
type ConsumerStats struct {
	Handled     int64 `json:"handled"`
	Failed      int64 `json:"failed"`
	FetchErrors int64 `json:"fetch_errors"`
}

type Consumer struct {
	reader  messageReader
	handler MessageHandler
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration)

	handled     atomic.Int64
	failed      atomic.Int64
	fetchErrors atomic.Int64
}

// NewConsumer joins cfg.ConsumerGroup on topic, starting from the newest
// offset when the group has none committed.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r messageReader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		sleep:   sleepCtx,
	}
}

// Start processes messages until ctx is cancelled, then closes the reader.
// Fetch errors back off exponentially up to maxFetchBackoff.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	backoff := minFetchBackoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err(), "handled", c.handled.Load())
				return nil
			}
			c.fetchErrors.Add(1)
			c.logger.Error("failed to fetch message", "error", err, "retry_in", backoff)
			c.sleep(ctx, backoff)
			backoff = min(backoff*2, maxFetchBackoff)
			continue
		}
		backoff = minFetchBackoff

		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.failed.Add(1)
			c.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		c.handled.Add(1)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Handled:     c.handled.Load(),
		Failed:      c.failed.Load(),
		FetchErrors: c.fetchErrors.Load(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
