package fabric

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis is a bus backed by Redis PUBLISH/PSUBSCRIBE.
type Redis struct {
	client *redis.Client
	log    *zerolog.Logger
}

// NewRedis creates a bus on an existing client. The client is owned by the caller.
func NewRedis(client *redis.Client, logger *zerolog.Logger) *Redis {
	return &Redis{client: client, log: logger}
}

func (r *Redis) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := r.client.Publish(ctx, subject, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe uses one dedicated pub/sub connection per pattern; delivery on it is ordered.
func (r *Redis) Subscribe(ctx context.Context, pattern string, h Handler) (Subscription, error) {
	ps := r.client.PSubscribe(ctx, pattern)
	// Wait for the subscription confirmation so nothing published afterwards is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis psubscribe %s: %w", pattern, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			h(msg.Channel, []byte(msg.Payload))
		}
	}()

	return &redisSub{ps: ps, done: done, pattern: pattern, log: r.log}, nil
}

// Close is a no-op; the shared client is closed by its owner.
func (r *Redis) Close() error { return nil }

type redisSub struct {
	ps      *redis.PubSub
	done    chan struct{}
	pattern string
	log     *zerolog.Logger
}

func (s *redisSub) Unsubscribe() error {
	err := s.ps.Close()
	<-s.done
	if err != nil {
		s.log.Warn().Err(err).Str("pattern", s.pattern).Msg("close redis subscription")
	}
	return err
}

var _ Bus = (*Redis)(nil)
