package subscription

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"studyboard/domain"
)

// update is the message published on the Redis channel. Subscribers only need the
// owner to refresh; the board itself is always re-read from storage.
type update struct {
	UserID   string `json:"UserId"`
	Type     string `json:"Type"`
	EntityID string `json:"EntityId,omitempty"`
}

// RedisPublisher broadcasts board changes to every API instance via Redis pub/sub.
type RedisPublisher struct {
	rc      *redis.Client
	channel string
}

func NewRedisPublisher(rc *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{rc: rc, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev domain.Event) error {
	data, err := sonic.Marshal(update{UserID: ev.UserID, Type: ev.Type, EntityID: ev.EntityID})
	if err != nil {
		return err
	}
	return p.rc.Publish(ctx, p.channel, data).Err()
}

// reconnectDelay is the pause before re-subscribing after the channel closed.
var reconnectDelay = time.Second

// SubscribeUpdates listens on channel and calls notify with the owner of every
// change until ctx is cancelled. A closed subscription is re-established.
func SubscribeUpdates(ctx context.Context, logger log.FieldLogger, rc *redis.Client, channel string, notify func(ownerID string)) {
	for {
		sub := rc.Subscribe(ctx, channel)
		consume(ctx, logger, sub.Channel(), notify)
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func consume(ctx context.Context, logger log.FieldLogger, ch <-chan *redis.Message, notify func(string)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev update
			if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
				logger.WithError(err).Error("unable to parse update")
				continue
			}
			if ev.UserID == "" {
				logger.Warn("update without user id")
				continue
			}
			notify(ev.UserID)
		}
	}
}
