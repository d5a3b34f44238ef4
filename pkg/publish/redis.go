// Package publish fans burst findings out to Redis for downstream triage tools.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hervehildenbrand/alert-radar/pkg/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel findings are published on.
const DefaultChannel = "alert-radar:bursts"

// Message is the payload published for each burst.
type Message struct {
	RunID string `json:"run_id"`
	models.Burst
}

// Publisher publishes bursts on a channel and keeps a per-address list of
// recent findings with a TTL.
type Publisher struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
	logger  *zap.Logger
}

// Connect parses a redis:// URL and verifies the server answers PING.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// NewPublisher creates a publisher. An empty channel uses DefaultChannel; a
// zero ttl keeps lists forever.
func NewPublisher(client *redis.Client, channel string, ttl time.Duration, logger *zap.Logger) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, channel: channel, ttl: ttl, logger: logger}
}

// ListKey returns the list key holding findings for addr.
func (p *Publisher) ListKey(addr string) string {
	return p.channel + ":" + addr
}

// Publish sends all bursts in a single pipeline.
func (p *Publisher) Publish(ctx context.Context, runID string, bursts []models.Burst) error {
	if len(bursts) == 0 {
		return nil
	}

	pipe := p.client.Pipeline()
	for _, b := range bursts {
		payload, err := json.Marshal(Message{RunID: runID, Burst: b})
		if err != nil {
			return fmt.Errorf("marshal burst: %w", err)
		}

		key := p.ListKey(b.SrcAddr)
		pipe.RPush(ctx, key, payload)
		if p.ttl > 0 {
			pipe.Expire(ctx, key, p.ttl)
		}
		pipe.Publish(ctx, p.channel, payload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish bursts: %w", err)
	}

	p.logger.Info("published bursts", zap.String("channel", p.channel), zap.Int("count", len(bursts)))
	return nil
}
