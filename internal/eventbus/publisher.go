package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream name shared by Publisher and
// Consumer when no operator override is configured.
const DefaultStream = "orbiter:events"

// Publisher appends inbound events (from the REST facade's POST /events)
// onto the Redis stream that Consumer reads.
type Publisher struct {
	client *redis.Client
	stream string
}

func NewPublisher(client *redis.Client, stream string) *Publisher {
	return &Publisher{client: client, stream: stream}
}

func (p *Publisher) Publish(ctx context.Context, id, topic, source string, payload domain.Value) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"id":      id,
			"topic":   topic,
			"source":  source,
			"payload": string(body),
		},
	}).Err()
}
