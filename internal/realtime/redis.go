package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/starblog/internal/metrics"
)

const (
	userChannelPrefix  = "notifications:user:"
	userChannelPattern = userChannelPrefix + "*"
)

// RedisBus publishes events to Redis so that every server process can
// deliver them to the sockets it holds. Forward is the receiving half.
type RedisBus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

var _ Publisher = (*RedisBus)(nil)

func NewRedisBus(rdb *redis.Client, logger *slog.Logger) *RedisBus {
	return &RedisBus{rdb: rdb, logger: logger}
}

// OpenRedis parses a redis:// URL and checks the server is reachable.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("realtime: parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("realtime: pinging redis: %w", err)
	}
	return rdb, nil
}

func userChannel(userID int64) string {
	return userChannelPrefix + strconv.FormatInt(userID, 10)
}

func (b *RedisBus) PublishUser(ctx context.Context, userID int64, e Event) error {
	payload, err := encode(e)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, userChannel(userID), payload).Err(); err != nil {
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("realtime: publishing to user %d: %w", userID, err)
	}
	return nil
}

// Forward subscribes to every user channel and hands each payload to hub.
// It blocks until ctx is cancelled or the subscription fails.
func (b *RedisBus) Forward(ctx context.Context, hub *Hub) error {
	sub := b.rdb.PSubscribe(ctx, userChannelPattern)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("realtime: subscribing to %s: %w", userChannelPattern, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			userID, err := parseUserChannel(msg.Channel)
			if err != nil {
				b.logger.Warn("invalid notification channel", slog.String("channel", msg.Channel))
				continue
			}
			hub.Deliver(userID, []byte(msg.Payload))
		}
	}
}

func parseUserChannel(channel string) (int64, error) {
	rest, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok {
		return 0, fmt.Errorf("realtime: unexpected channel %q", channel)
	}
	return strconv.ParseInt(rest, 10, 64)
}
