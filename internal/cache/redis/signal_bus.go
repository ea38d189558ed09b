package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/quietbet/poolhouse/internal/domain"
)

// Channel and stream names used by the bus.
const (
	noticeChannel     = "poolhouse:notices"
	resolutionChannel = "poolhouse:resolutions"
	noticeStream      = "poolhouse:stream:notices"
)

// streamMaxLen is the approximate maximum length for Redis streams, enforced
// via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// SignalBus implements domain.SignalBus using Redis Pub/Sub for live fan-out
// plus a capped stream keeping a short replayable tail of notices.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// PublishNotice fans a settlement notice out to subscribers and appends it to
// the notice stream.
func (sb *SignalBus) PublishNotice(ctx context.Context, notice domain.SettlementNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("redis: marshal notice: %w", err)
	}

	if err := sb.rdb.Publish(ctx, noticeChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish notice: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: noticeStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := sb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append notice: %w", err)
	}
	return nil
}

// SubscribeNotices returns a channel of settlement notices. The subscription
// closes when ctx is cancelled; the returned channel is closed at that point.
func (sb *SignalBus) SubscribeNotices(ctx context.Context) (<-chan domain.SettlementNotice, error) {
	raw, err := sb.subscribe(ctx, noticeChannel)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.SettlementNotice, 128)
	go func() {
		defer close(out)
		for payload := range raw {
			var notice domain.SettlementNotice
			if err := json.Unmarshal(payload, &notice); err != nil {
				continue
			}
			select {
			case out <- notice:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// PublishResolution forwards an oracle resolution event to any process
// listening for it.
func (sb *SignalBus) PublishResolution(ctx context.Context, event domain.ResolutionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal resolution: %w", err)
	}
	if err := sb.rdb.Publish(ctx, resolutionChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish resolution: %w", err)
	}
	return nil
}

// SubscribeResolutions returns a channel of oracle resolution events.
func (sb *SignalBus) SubscribeResolutions(ctx context.Context) (<-chan domain.ResolutionEvent, error) {
	raw, err := sb.subscribe(ctx, resolutionChannel)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.ResolutionEvent, 128)
	go func() {
		defer close(out)
		for payload := range raw {
			var event domain.ResolutionEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// subscribe creates a Redis Pub/Sub subscription and returns a read-only
// channel of raw payloads. The subscription is closed when ctx is cancelled.
func (sb *SignalBus) subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := sb.rdb.Subscribe(ctx, channel)

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close is a no-op; subscriptions are tied to their contexts and the shared
// client is closed by its owner.
func (sb *SignalBus) Close() error {
	return nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
