package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/apex-authority/backoffice/internal/app/system"
	"github.com/apex-authority/backoffice/internal/logging"
)

// envelope wraps a Message with the publishing instance so an instance can
// filter out its own publications.
type envelope struct {
	Origin  string  `json:"origin"`
	Message Message `json:"message"`
}

// RedisBridge relays hub messages between instances through a Redis channel.
type RedisBridge struct {
	client     *redis.Client
	channel    string
	hub        *Hub
	instanceID string
	logger     *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ system.Service = (*RedisBridge)(nil)

// NewRedisBridge connects the hub to a Redis pub/sub channel.
func NewRedisBridge(client *redis.Client, channel string, hub *Hub, logger *logging.Logger) (*RedisBridge, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if channel == "" {
		return nil, fmt.Errorf("channel is required")
	}
	if hub == nil {
		return nil, fmt.Errorf("hub is required")
	}
	if logger == nil {
		logger = logging.NewDefault("broadcast")
	}
	return &RedisBridge{
		client:     client,
		channel:    channel,
		hub:        hub,
		instanceID: uuid.NewString(),
		logger:     logger,
	}, nil
}

// Name implements system.Service.
func (b *RedisBridge) Name() string { return "broadcast-redis" }

// Start subscribes and begins relaying remote messages to the local hub.
func (b *RedisBridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		return fmt.Errorf("redis bridge already started")
	}

	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sub := b.client.Subscribe(runCtx, b.channel)
	if _, err := sub.Receive(runCtx); err != nil {
		cancel()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	b.cancel = cancel
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.handle(msg.Payload)
			}
		}
	}()

	b.logger.WithField("channel", b.channel).Info("redis broadcast bridge started")
	return nil
}

// Stop tears down the subscription.
func (b *RedisBridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	cancel := b.cancel
	done := b.done
	b.cancel = nil
	b.done = nil
	b.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Publish sends a message to the other instances.
func (b *RedisBridge) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(envelope{Origin: b.instanceID, Message: msg})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBridge) handle(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.WithError(err).Warn("discarding malformed broadcast payload")
		return
	}
	if env.Origin == b.instanceID {
		return
	}
	if err := b.hub.Broadcast(env.Message, ""); err != nil {
		b.logger.WithError(err).Warn("relaying broadcast failed")
	}
}

// Broadcaster couples the local hub with an optional cross-instance bridge.
type Broadcaster struct {
	Hub    *Hub
	Bridge *RedisBridge
}

// Send delivers msg to local tabs except originID, then relays it to other
// instances when a bridge is configured.
func (b *Broadcaster) Send(ctx context.Context, msg Message, originID string) error {
	if b == nil || b.Hub == nil {
		return nil
	}
	if err := b.Hub.Broadcast(msg, originID); err != nil {
		return err
	}
	if b.Bridge != nil {
		return b.Bridge.Publish(ctx, msg)
	}
	return nil
}
