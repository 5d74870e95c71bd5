package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/shaunagostinho/psudash/internal/psu"
)

// RedisOptions configures the Redis publisher.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Channel  string
	MaxLen   int64 // samples kept per model, 0 for 1000
}

// Redis publishes samples on a pub/sub channel and keeps the most recent
// ones in a list per model.
type Redis struct {
	client  *redis.Client
	channel string
	maxLen  int64
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", opts.Addr, err)
	}
	log.Printf("[redis] connected to %s", opts.Addr)
	return NewRedisWithClient(client, opts), nil
}

// NewRedisWithClient wraps an existing client without pinging it.
func NewRedisWithClient(client *redis.Client, opts RedisOptions) *Redis {
	if opts.Channel == "" {
		opts.Channel = "psu:samples"
	}
	if opts.MaxLen <= 0 {
		opts.MaxLen = 1000
	}
	return &Redis{client: client, channel: opts.Channel, maxLen: opts.MaxLen}
}

func (r *Redis) Name() string { return "redis" }

// ListKey is the list holding recent samples of one model.
func ListKey(model string) string {
	return fmt.Sprintf("psu:%s:samples", model)
}

func (r *Redis) Publish(ctx context.Context, s *psu.Sample) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("redis: marshal sample: %w", err)
	}

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish: %w", err)
	}

	key := ListKey(s.Model)
	if err := r.client.LPush(ctx, key, data).Err(); err != nil {
		log.Warnf("[redis] push to %s failed: %v", key, err)
		return nil
	}
	r.client.LTrim(ctx, key, 0, r.maxLen-1)
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
