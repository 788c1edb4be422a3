// Package memory is an in-process broker for tests and single-process
// deployments.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/broker"
)

var _ broker.Broker = (*Broker)(nil)

// Broker keeps a FIFO per job type. Received messages stay pending until
// acknowledged; Redeliver requeues them.
type Broker struct {
	mu      sync.Mutex
	queues  map[string][]broker.Delivery
	pending map[string]broker.Delivery
	notify  chan struct{}
	seq     int64
	closed  bool

	wait time.Duration
}

// Option configures a Broker.
type Option func(*Broker)

// WithWait sets how long Receive waits for a message before returning
// empty. Defaults to one second.
func WithWait(d time.Duration) Option {
	return func(b *Broker) { b.wait = d }
}

// New returns an empty Broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		queues:  make(map[string][]broker.Delivery),
		pending: make(map[string]broker.Delivery),
		notify:  make(chan struct{}),
		wait:    time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// wake releases every waiting receiver. Callers hold mu.
func (b *Broker) wake() {
	close(b.notify)
	b.notify = make(chan struct{})
}

func (b *Broker) Publish(_ context.Context, ref broker.Ref) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return dispatch.ErrBrokerClosed
	}
	b.seq++
	d := broker.Delivery{Ref: ref, Topic: ref.Type, ID: strconv.FormatInt(b.seq, 10)}
	b.queues[ref.Type] = append(b.queues[ref.Type], d)
	b.wake()
	return nil
}

func (b *Broker) Receive(ctx context.Context, types []string, limit int) ([]broker.Delivery, error) {
	if limit < 1 {
		limit = 1
	}
	timer := time.NewTimer(b.wait)
	defer timer.Stop()

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, dispatch.ErrBrokerClosed
		}
		out := b.take(types, limit)
		notify := b.notify
		b.mu.Unlock()

		if len(out) > 0 {
			return out, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return []broker.Delivery{}, nil
		case <-notify:
		}
	}
}

// take pops up to limit deliveries across types in order. Callers hold mu.
func (b *Broker) take(types []string, limit int) []broker.Delivery {
	var out []broker.Delivery
	for _, t := range types {
		q := b.queues[t]
		for len(q) > 0 && len(out) < limit {
			d := q[0]
			q = q[1:]
			b.pending[d.ID] = d
			out = append(out, d)
		}
		b.queues[t] = q
	}
	return out
}

func (b *Broker) Ack(_ context.Context, d broker.Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, d.ID)
	return nil
}

// Pending returns the number of received but unacknowledged messages.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Redeliver puts every unacknowledged message back on its queue.
func (b *Broker) Redeliver() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, d := range b.pending {
		b.queues[d.Topic] = append(b.queues[d.Topic], d)
		delete(b.pending, key)
	}
	b.wake()
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.wake()
	}
	return nil
}
