package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/realtime"
)

const publishTimeout = 2 * time.Second

// ErrNotStarted is returned by Publish before Start succeeded or after Stop.
var ErrNotStarted = errors.New("relay is not started")

// relayEnvelope wraps a received envelope with the id of the publishing
// process so subscribers can tell relays apart.
type relayEnvelope struct {
	InstanceID string            `json:"instance_id"`
	ReceivedAt time.Time         `json:"received_at"`
	Envelope   realtime.Envelope `json:"envelope"`
}

// RedisRelay republishes envelopes received on realtime channels to Redis
// pub/sub, one Redis channel per topic.
type RedisRelay struct {
	client     *redis.Client
	prefix     string
	instanceID string
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	active bool
}

// NewRedisRelay creates a relay. No connection is made until Start.
func NewRedisRelay(cfg *Config, logger zerolog.Logger) *RedisRelay {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisRelay{
		client:     client,
		prefix:     cfg.Prefix,
		instanceID: uuid.New().String(),
		logger:     logger.With().Str("component", "redis-relay").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start checks that Redis is reachable.
func (r *RedisRelay) Start(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.active = true
	r.mu.Unlock()

	r.logger.Info().
		Str("instance_id", r.instanceID).
		Str("prefix", r.prefix).
		Msg("redis relay started")
	return nil
}

// Stop closes the Redis connection.
func (r *RedisRelay) Stop() error {
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()

	r.cancel()
	return r.client.Close()
}

// Available reports whether the relay is connected.
func (r *RedisRelay) Available() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// InstanceID identifies this relay in published messages.
func (r *RedisRelay) InstanceID() string {
	return r.instanceID
}

// ChannelFor returns the Redis channel envelopes of topic are published on.
func (r *RedisRelay) ChannelFor(topic string) string {
	return r.prefix + topic
}

// Publish sends env to the Redis channel of its topic.
func (r *RedisRelay) Publish(ctx context.Context, env realtime.Envelope) error {
	if !r.Available() {
		return ErrNotStarted
	}

	data, err := r.encode(env)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.ChannelFor(env.Topic), data).Err()
}

func (r *RedisRelay) encode(env realtime.Envelope) ([]byte, error) {
	return json.Marshal(relayEnvelope{
		InstanceID: r.instanceID,
		ReceivedAt: time.Now().UTC(),
		Envelope:   env,
	})
}

// Forward returns a callback that publishes every payload it receives as an
// envelope of topic and event. Failures are logged and dropped.
func (r *RedisRelay) Forward(topic, event string) realtime.Callback {
	return func(payload realtime.Payload) {
		ctx, cancel := context.WithTimeout(r.ctx, publishTimeout)
		defer cancel()

		env := realtime.Envelope{Topic: topic, Event: event, Payload: payload}
		if err := r.Publish(ctx, env); err != nil {
			r.logger.Warn().Err(err).
				Str("topic", topic).
				Str("event", event).
				Msg("failed to relay envelope")
			return
		}
		r.logger.Debug().
			Str("channel", r.ChannelFor(topic)).
			Str("event", event).
			Msg("relayed envelope")
	}
}

// Attach registers a forwarding listener on ch for each event.
func (r *RedisRelay) Attach(ch realtime.Channel, events ...string) {
	for _, event := range events {
		ch.On(event, r.Forward(ch.Topic(), event))
	}
}
