package events

import (
	"context"
	"encoding/json"
	"time"

	"commune-chat/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Publisher pushes change envelopes onto the feed channels after durable
// writes. Publish failures are logged, never surfaced: the local writer has
// already seen its own write, and remote readers recover on their next
// refetch.
type Publisher struct {
	client *redis.Client
	log    *logger.Logger
}

func NewPublisher(client *redis.Client, log *logger.Logger) *Publisher {
	return &Publisher{client: client, log: log}
}

func (p *Publisher) Publish(ctx context.Context, channel string, env Envelope) {
	if p == nil || p.client == nil {
		return
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(env)
	if err != nil {
		p.log.Errorf("marshal feed event %s: %v", env.EventType, err)
		return
	}
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.log.Warnf("publish %s to %s: %v", env.EventType, channel, err)
	}
}
