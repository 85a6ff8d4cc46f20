package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

// DefaultChannel is the Redis channel incident events are published on.
const DefaultChannel = "roadwatch:incidents"

// RedisPublisher publishes incident events to a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects to Redis using a URL
// (redis://host:port/db) and verifies the connection.
func NewRedisPublisher(ctx context.Context, url, channel string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if channel == "" {
		channel = DefaultChannel
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisPublisher{client: client, channel: channel}, nil
}

// Ping verifies the Redis connection is alive.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Name returns "redis".
func (p *RedisPublisher) Name() string {
	return "redis"
}

// PublishCreated announces a newly opened incident.
func (p *RedisPublisher) PublishCreated(ctx context.Context, incident *models.Incident) error {
	return p.publish(ctx, "created", incident)
}

// PublishResolved announces an operator resolution.
func (p *RedisPublisher) PublishResolved(ctx context.Context, incident *models.Incident) error {
	return p.publish(ctx, "resolved", incident)
}

func (p *RedisPublisher) publish(ctx context.Context, kind string, incident *models.Incident) error {
	payload, err := json.Marshal(Event{
		Kind:     kind,
		At:       time.Now().UTC(),
		Incident: incident,
	})
	if err != nil {
		return fmt.Errorf("marshal incident event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish incident event: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
