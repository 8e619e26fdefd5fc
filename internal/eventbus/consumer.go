// Package eventbus consumes the Redis Streams event feed named in
// SPEC_FULL §6 and hands each delivery to the Scheduler's onEvent path.
// No pack example wires Redis Streams; this package is grounded on the
// teacher's scheduler.Dispatcher/Worker shape (ticking Start(ctx) loop,
// per-item goroutine dispatch, structured slog logging) applied to a
// consumer-group read loop instead of a SQL poll.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Handler processes one admitted event; implemented by *scheduler.Scheduler.
type Handler interface {
	OnEvent(ctx context.Context, event domain.Event) error
}

type Consumer struct {
	client   *redis.Client
	handler  Handler
	stream   string
	group    string
	consumer string
	logger   *slog.Logger
}

func NewConsumer(client *redis.Client, handler Handler, stream, group, consumerName string, logger *slog.Logger) *Consumer {
	return &Consumer{
		client:   client,
		handler:  handler,
		stream:   stream,
		group:    group,
		consumer: consumerName,
		logger:   logger.With("component", "eventbus_consumer"),
	}
}

// EnsureGroup creates the consumer group if it does not already exist,
// starting from the beginning of the stream's retained history.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		// BUSYGROUP means the group already exists — not an error.
		if rerr, ok := asRedisError(err); ok && containsBusyGroup(rerr) {
			return nil
		}
		return err
	}
	return nil
}

func (c *Consumer) Start(ctx context.Context) {
	c.logger.Info("eventbus consumer started", "stream", c.stream, "group", c.group)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("eventbus consumer shut down")
			return
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Count:    50,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			c.logger.Error("read group", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.process(ctx, msg)
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	event, err := decodeEvent(msg)
	if err != nil {
		c.logger.Error("decode event", "message_id", msg.ID, "error", err)
		_ = c.client.XAck(ctx, c.stream, c.group, msg.ID).Err()
		return
	}

	if err := c.handler.OnEvent(ctx, event); err != nil {
		c.logger.Error("handle event", "event_id", event.ID, "error", err)
		// Left unacked in the group's pending list. Start reads only new
		// entries (">"), so this consumer does not read it again.
		return
	}

	if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
		c.logger.Error("ack event", "message_id", msg.ID, "error", err)
	}
}

func decodeEvent(msg redis.XMessage) (domain.Event, error) {
	id, _ := msg.Values["id"].(string)
	if id == "" {
		id = msg.ID
	}
	topic, _ := msg.Values["topic"].(string)
	source, _ := msg.Values["source"].(string)
	payloadRaw, _ := msg.Values["payload"].(string)

	var payload domain.Value
	if payloadRaw != "" {
		if err := json.Unmarshal([]byte(payloadRaw), &payload); err != nil {
			return domain.Event{}, err
		}
	} else {
		payload = domain.NullValue()
	}

	return domain.Event{
		ID:      id,
		Topic:   topic,
		Payload: payload,
		Source:  source,
		AtTime:  time.Now(),
	}, nil
}

type redisError interface{ Error() string }

func asRedisError(err error) (redisError, bool) {
	re, ok := err.(redisError)
	return re, ok
}

func containsBusyGroup(err redisError) bool {
	s := err.Error()
	return len(s) >= 9 && s[:9] == "BUSYGROUP"
}
