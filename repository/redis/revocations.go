package redis

import (
	"context"

	redislib "github.com/redis/go-redis/v9"
)

// DefaultRevocationChannel carries the ids of sessions revoked anywhere in the platform.
const DefaultRevocationChannel = "auth:revoked"

// RevocationFeed publishes and observes session revocations over Redis pub/sub.
type RevocationFeed struct {
	client  *redislib.Client
	channel string
}

func NewRevocationFeed(client *redislib.Client, channel string) *RevocationFeed {
	if channel == "" {
		channel = DefaultRevocationChannel
	}
	return &RevocationFeed{client: client, channel: channel}
}

// Publish announces that the session id is no longer valid.
func (f *RevocationFeed) Publish(ctx context.Context, sessionID string) error {
	return f.client.Publish(ctx, f.channel, sessionID).Err()
}

// Watch delivers revoked session ids until ctx is cancelled. The returned channel is closed on exit.
func (f *RevocationFeed) Watch(ctx context.Context) (<-chan string, error) {
	sub := f.client.Subscribe(ctx, f.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
