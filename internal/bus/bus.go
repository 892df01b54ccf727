package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/go-redis/redis/v8"
)

// Publisher is the outbound half of the station bus. The dispatcher
// and the admin handlers publish through this interface so tests can
// capture traffic without a broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
	PublishRetained(ctx context.Context, topic string, payload any) error
}

// Bus is a thin station-bus client on top of Redis pub/sub. Topics are
// namespaced "{ns}/...". Delivery is fire-and-forget: if a station is
// disconnected when a message is published, the message is missed.
// The one exception is PublishRetained, which also writes the payload
// to a well-known key so late-joining stations can read the last value.
type Bus struct {
	rdb       *redis.Client
	namespace string
}

func New(rdb *redis.Client, namespace string) *Bus {
	return &Bus{rdb: rdb, namespace: namespace}
}

// Topic joins path segments under the bus namespace.
func (b *Bus) Topic(parts ...string) string {
	return b.namespace + "/" + strings.Join(parts, "/")
}

// RetainedKey is the key holding the last retained payload for a topic.
func RetainedKey(topic string) string {
	return "retained:" + topic
}

// Publish marshals payload as JSON and publishes it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}
	return b.rdb.Publish(ctx, topic, data).Err()
}

// PublishRetained publishes like Publish and additionally stores the
// payload under RetainedKey(topic). Redis pub/sub has no retained
// messages, so stations read the key on connect to learn the last
// value without waiting for the next publish.
func (b *Bus) PublishRetained(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}

	pipe := b.rdb.TxPipeline()
	pipe.Set(ctx, RetainedKey(topic), data, 0)
	pipe.Publish(ctx, topic, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return nil
}

// Retained returns the last retained payload for topic, or nil if none
// was ever published. This is the read side of PublishRetained: station
// clients issue the same GET on RetainedKey(topic) when they connect,
// instead of waiting for the next broadcast.
func (b *Bus) Retained(ctx context.Context, topic string) ([]byte, error) {
	data, err := b.rdb.Get(ctx, RetainedKey(topic)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Subscribe opens a pattern subscription and waits for the broker to
// confirm it. Patterns use Redis glob syntax, e.g. "arcade/core/*".
// The returned func closes the subscription and its channel.
func (b *Bus) Subscribe(ctx context.Context, patterns ...string) (<-chan *redis.Message, func() error, error) {
	log.Printf("[BUS] Subscribing to patterns: %v", patterns)

	pubsub := b.rdb.PSubscribe(ctx, patterns...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}
	return pubsub.Channel(), pubsub.Close, nil
}
