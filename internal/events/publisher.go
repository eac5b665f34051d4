package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher appends events to one Redis stream.
type Publisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

func NewPublisher(client redis.Cmdable, stream string) *Publisher {
	return &Publisher{client: client, stream: stream, maxLen: 100000}
}

func (p *Publisher) Publish(ctx context.Context, eventType, accountID string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	eventJSON, err := json.Marshal(Event{
		Type:      eventType,
		AccountID: accountID,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"event": eventJSON,
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	return nil
}
