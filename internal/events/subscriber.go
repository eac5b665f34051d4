package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Handler func(ctx context.Context, event Event) error

type Subscriber struct {
	client        redis.Cmdable
	group         string
	consumer      string
	stream        string
	handler       Handler
	batchSize     int64
	blockDuration time.Duration
	logger        *slog.Logger
}

type SubscriberConfig struct {
	Group         string
	Consumer      string
	Stream        string
	Handler       Handler
	BatchSize     int64
	BlockDuration time.Duration
	Logger        *slog.Logger
}

func NewSubscriber(client redis.Cmdable, config SubscriberConfig) *Subscriber {
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.BlockDuration == 0 {
		config.BlockDuration = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Subscriber{
		client:        client,
		group:         config.Group,
		consumer:      config.Consumer,
		stream:        config.Stream,
		handler:       config.Handler,
		batchSize:     config.BatchSize,
		blockDuration: config.BlockDuration,
		logger:        config.Logger.With(slog.String("stream", config.Stream), slog.String("group", config.Group)),
	}
}

// Start consumes the stream until ctx is cancelled. Messages whose handler
// fails stay pending for this consumer and are retried on the next Start.
func (s *Subscriber) Start(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	s.logger.Info("subscriber started", slog.String("consumer", s.consumer))

	// "0" replays what this consumer read but never acknowledged.
	if err := s.readMessages(ctx, "0"); err != nil && ctx.Err() == nil {
		s.logger.Warn("replaying pending messages failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("subscriber stopping")
			return ctx.Err()
		default:
			if err := s.readMessages(ctx, ">"); err != nil {
				if ctx.Err() != nil {
					continue
				}
				s.logger.Error("reading stream failed", slog.Any("error", err))
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}
}

func (s *Subscriber) readMessages(ctx context.Context, from string) error {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, from},
		Count:    s.batchSize,
		Block:    s.blockDuration,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			if err := s.processMessage(ctx, message); err != nil {
				s.logger.Warn("message not processed", slog.String("id", message.ID), slog.Any("error", err))
				continue
			}

			if err := s.client.XAck(ctx, s.stream, s.group, message.ID).Err(); err != nil {
				s.logger.Warn("ack failed", slog.String("id", message.ID), slog.Any("error", err))
			}
		}
	}

	return nil
}

func (s *Subscriber) processMessage(ctx context.Context, message redis.XMessage) error {
	event, err := DecodeMessage(message)
	if err != nil {
		return err
	}
	return s.handler(ctx, event)
}

// DecodeMessage extracts the Event stored under the "event" field.
func DecodeMessage(message redis.XMessage) (Event, error) {
	var event Event
	eventData, ok := message.Values["event"].(string)
	if !ok {
		return event, fmt.Errorf("invalid message format")
	}
	if err := json.Unmarshal([]byte(eventData), &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}
