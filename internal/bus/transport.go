package bus

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// transport is the live leg of a broadcaster: a stream of raw envelope
// payloads read from the broker. Closing it ends the stream.
type transport interface {
	Messages() <-chan []byte
	Close() error
}

type redisTransport struct {
	pubsub *redis.PubSub
	out    chan []byte
}

func newRedisTransport(ctx context.Context, client *redis.Client, channels []string) (transport, error) {
	pubsub := client.Subscribe(ctx, channels...)

	// Wait for the subscription confirmation so that messages published
	// after this point are guaranteed to be delivered.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	t := &redisTransport{
		pubsub: pubsub,
		out:    make(chan []byte, 64),
	}
	go t.pump()
	return t, nil
}

func (t *redisTransport) pump() {
	defer close(t.out)
	for msg := range t.pubsub.Channel() {
		t.out <- []byte(msg.Payload)
	}
}

func (t *redisTransport) Messages() <-chan []byte {
	return t.out
}

func (t *redisTransport) Close() error {
	return t.pubsub.Close()
}
