package changefeed

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"backtest-orchestrator/internal/logging"
)

// RedisRelay mirrors every local Publish onto a Redis pub/sub channel, and
// republishes every message observed on that channel locally, so multiple
// API replicas behind a load balancer converge on the same task-update
// stream instead of each only seeing the transitions its own scheduler
// produced.
type RedisRelay struct {
	client  *redis.Client
	channel string
	feed    *Feed
	log     *logging.Logger
}

// NewRedisRelay wires client to feed over channel. It does not start
// listening until Run is called.
func NewRedisRelay(client *redis.Client, channel string, feed *Feed, log *logging.Logger) *RedisRelay {
	if log == nil {
		log = logging.Default()
	}
	return &RedisRelay{client: client, channel: channel, feed: feed, log: log.WithComponent("changefeed.redis")}
}

// PublishRemote mirrors update onto the Redis channel; callers still call
// Feed.Publish for the local broadcast.
func (r *RedisRelay) PublishRemote(ctx context.Context, update Update) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Run subscribes to the Redis channel and republishes every message onto
// the local feed until ctx is cancelled. Intended to run in its own
// goroutine for the lifetime of the process.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var update Update
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				r.log.Warn("changefeed: malformed redis payload", "error", err)
				continue
			}
			r.feed.broadcastLocal(update)
		}
	}
}
