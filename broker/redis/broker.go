// Package redis implements broker.Broker on Redis Streams.
//
// Each job type has its own stream (dispatch:jobs:{type}) read through a
// consumer group, so every message goes to exactly one consumer of the
// group. Messages left unacknowledged by a consumer that died are claimed
// by another one after MinIdle.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	b := redisbroker.New(client)
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/assaka/daino-sub010/broker"
	"github.com/assaka/daino-sub010/id"
)

var _ broker.Broker = (*Broker)(nil)

// Option configures the Broker.
type Option func(*Broker)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// WithGroup sets the consumer group name. Defaults to "dispatch-workers".
func WithGroup(group string) Option {
	return func(b *Broker) { b.group = group }
}

// WithConsumer sets this process's consumer name. Defaults to a fresh
// worker ID.
func WithConsumer(name string) Option {
	return func(b *Broker) { b.consumer = name }
}

// WithBlock sets how long Receive blocks waiting for messages.
func WithBlock(d time.Duration) Option {
	return func(b *Broker) { b.block = d }
}

// WithMinIdle sets how long a message may stay unacknowledged before
// another consumer claims it.
func WithMinIdle(d time.Duration) Option {
	return func(b *Broker) { b.minIdle = d }
}

// WithMaxLen caps each stream at approximately n entries.
func WithMaxLen(n int64) Option {
	return func(b *Broker) { b.maxLen = n }
}

// Broker is a Redis Streams broker.
type Broker struct {
	client   goredis.UniversalClient
	logger   *slog.Logger
	group    string
	consumer string
	block    time.Duration
	minIdle  time.Duration
	maxLen   int64

	mu        sync.Mutex
	groups    map[string]bool
	lastClaim time.Time
}

// New creates a Broker. The caller owns the client; Close does not close
// it.
func New(client goredis.UniversalClient, opts ...Option) *Broker {
	b := &Broker{
		client:   client,
		logger:   slog.Default(),
		group:    "dispatch-workers",
		consumer: id.NewWorkerID().String(),
		block:    time.Second,
		minIdle:  5 * time.Minute,
		maxLen:   100_000,
		groups:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) Publish(ctx context.Context, ref broker.Ref) error {
	data, err := encodeRef(ref)
	if err != nil {
		return err
	}
	args := &goredis.XAddArgs{
		Stream: streamKey(ref.Type),
		Values: map[string]any{refField: data},
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}
	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("dispatch/redis: publish %s: %w", ref.JobID, err)
	}
	return nil
}

func (b *Broker) Receive(ctx context.Context, types []string, limit int) ([]broker.Delivery, error) {
	if len(types) == 0 {
		return []broker.Delivery{}, nil
	}
	if limit < 1 {
		limit = 1
	}

	streams := make([]string, 0, 2*len(types))
	for _, t := range types {
		key := streamKey(t)
		if err := b.ensureGroup(ctx, key); err != nil {
			return nil, err
		}
		streams = append(streams, key)
	}

	if b.claimDue() {
		if out := b.claimIdle(ctx, streams, limit); len(out) > 0 {
			return out, nil
		}
	}

	for range types {
		streams = append(streams, ">")
	}
	res, err := b.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    b.group,
		Consumer: b.consumer,
		Streams:  streams,
		Count:    int64(limit),
		Block:    b.block,
	}).Result()
	if errors.Is(err, goredis.Nil) {
		return []broker.Delivery{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dispatch/redis: read group: %w", err)
	}

	out := make([]broker.Delivery, 0, limit)
	for _, s := range res {
		out = append(out, b.deliveries(ctx, s.Stream, s.Messages)...)
	}
	return out, nil
}

func (b *Broker) Ack(ctx context.Context, d broker.Delivery) error {
	if err := b.client.XAck(ctx, d.Topic, b.group, d.ID).Err(); err != nil {
		return fmt.Errorf("dispatch/redis: ack %s: %w", d.ID, err)
	}
	return nil
}

// Ping verifies the Redis connection is alive.
func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the client.
func (b *Broker) Close() error { return nil }

func (b *Broker) ensureGroup(ctx context.Context, stream string) error {
	b.mu.Lock()
	ok := b.groups[stream]
	b.mu.Unlock()
	if ok {
		return nil
	}

	err := b.client.XGroupCreateMkStream(ctx, stream, b.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("dispatch/redis: create group on %s: %w", stream, err)
	}

	b.mu.Lock()
	b.groups[stream] = true
	b.mu.Unlock()
	return nil
}

// claimDue reports whether an idle-message sweep is due. Sweeps run at
// most once per minIdle/2 per process.
func (b *Broker) claimDue() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Since(b.lastClaim) < b.minIdle/2 {
		return false
	}
	b.lastClaim = time.Now()
	return true
}

func (b *Broker) claimIdle(ctx context.Context, streams []string, limit int) []broker.Delivery {
	var out []broker.Delivery
	for _, stream := range streams {
		if len(out) >= limit {
			break
		}
		msgs, _, err := b.client.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
			Stream:   stream,
			Group:    b.group,
			Consumer: b.consumer,
			MinIdle:  b.minIdle,
			Start:    "0-0",
			Count:    int64(limit - len(out)),
		}).Result()
		if err != nil {
			b.logger.Warn("redis autoclaim failed",
				slog.String("stream", stream),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(msgs) > 0 {
			b.logger.Info("claimed idle broker messages",
				slog.String("stream", stream),
				slog.Int("count", len(msgs)),
			)
		}
		out = append(out, b.deliveries(ctx, stream, msgs)...)
	}
	return out
}

// deliveries decodes messages. Undecodable ones are acknowledged and
// dropped so they are not redelivered forever.
func (b *Broker) deliveries(ctx context.Context, stream string, msgs []goredis.XMessage) []broker.Delivery {
	out := make([]broker.Delivery, 0, len(msgs))
	for _, m := range msgs {
		raw, _ := m.Values[refField].(string)
		ref, err := decodeRef([]byte(raw))
		if err != nil {
			b.logger.Warn("dropping malformed broker message",
				slog.String("stream", stream),
				slog.String("message_id", m.ID),
				slog.String("error", err.Error()),
			)
			_ = b.client.XAck(ctx, stream, b.group, m.ID).Err()
			continue
		}
		out = append(out, broker.Delivery{Ref: ref, Topic: stream, ID: m.ID})
	}
	return out
}
