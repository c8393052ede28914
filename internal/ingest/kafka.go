package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	v1 "github.com/gridpulse-lab/gridpulse/internal/api/v1"
	"github.com/gridpulse-lab/gridpulse/internal/core/storage"
)

// ConsumerConfig configures the broker side of the inbound value path.
type ConsumerConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
}

// messageFetcher captures the reader capability the consumer needs. Test
// seam for the loop.
type messageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Consumer streams pushed resource values from the message broker and
// applies them through the same path as the HTTP endpoint. Malformed or
// rejected messages are logged and committed, never redelivered forever.
type Consumer struct {
	cfg     ConsumerConfig
	reader  *kafka.Reader
	fetcher messageFetcher
	service *Service
	poll    time.Duration
}

// NewConsumer builds a broker consumer bound to a consumer group.
func NewConsumer(cfg ConsumerConfig, service *Service) (*Consumer, error) {
	if service == nil {
		return nil, errors.New("ingest: service must not be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("ingest: at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("ingest: topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("ingest: consumer group must not be empty")
	}

	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = 5 * time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})

	return &Consumer{cfg: cfg, reader: reader, fetcher: reader, service: service, poll: poll}, nil
}

// Close shuts down the underlying broker reader.
func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Run blocks until the context is cancelled, consuming and applying
// messages one at a time.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("[Ingest] Broker consumer started",
		"topic", c.cfg.Topic,
		"group", c.cfg.GroupID,
		"brokers", strings.Join(c.cfg.Brokers, ","))
	defer slog.Info("[Ingest] Broker consumer stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.poll)
		msg, err := c.fetcher.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			slog.Error("[Ingest] Broker fetch failed", "error", err)
			continue
		}

		if err := c.handle(ctx, msg.Value); err != nil {
			slog.Warn("[Ingest] Broker message rejected",
				"error", err, "offset", msg.Offset, "partition", msg.Partition)
		}

		if err := c.fetcher.CommitMessages(ctx, msg); err != nil {
			slog.Error("[Ingest] Broker commit failed", "error", err, "offset", msg.Offset)
		}
	}
}

// handle decodes and applies one broker message. Duplicates are treated
// as already delivered.
func (c *Consumer) handle(ctx context.Context, raw []byte) error {
	var rv v1.ResourceValue
	if err := json.Unmarshal(raw, &rv); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	if err := rv.Validate(); err != nil {
		return err
	}
	rv.ReceivedAt = c.service.now()

	if err := c.service.Apply(ctx, &rv); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			slog.Debug("[Ingest] Duplicate broker value discarded",
				"resource_id", rv.ResourceID, "taken_at", rv.TakenAt)
			return nil
		}
		return err
	}
	return nil
}
