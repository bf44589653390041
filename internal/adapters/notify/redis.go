package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	core "github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/models"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/ports"
)

const publishTimeout = 3 * time.Second

// Publisher is the subset of the redis client the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier publishes events as JSON on a redis channel so external
// alerting can subscribe. Publish failures are logged, never propagated:
// notification must not affect the check path.
type RedisNotifier struct {
	rdb     Publisher
	channel string
	log     *slog.Logger
}

var _ ports.Notifier = (*RedisNotifier)(nil)

func NewRedisNotifier(rdb Publisher, channel string, log *slog.Logger) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, channel: channel, log: log}
}

func (n *RedisNotifier) Notify(ctx context.Context, event core.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.log.Warn("cannot marshal event", slog.Any("error", err))
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := n.rdb.Publish(pctx, n.channel, payload).Err(); err != nil {
		n.log.Warn("cannot publish event",
			slog.String("channel", n.channel),
			slog.Any("error", err))
	}
}
