// Package broker defines the notification channel between Submit and the
// broker worker pool.
//
// A broker only carries job references. The job record in the store stays
// the source of truth: a lost, duplicated or late message never changes
// what runs, it only changes how soon.
package broker

import (
	"context"

	"github.com/assaka/daino-sub010/id"
)

// Ref points at a persisted job.
type Ref struct {
	JobID id.JobID
	Type  string
}

// Delivery is a Ref received from a broker. It must be acknowledged once
// handled; unacknowledged deliveries may be redelivered.
type Delivery struct {
	Ref Ref

	// Topic and ID identify the message for Ack.
	Topic string
	ID    string
}

// Broker publishes and receives job references.
type Broker interface {
	// Publish announces ref to consumers of ref.Type.
	Publish(ctx context.Context, ref Ref) error

	// Receive waits for up to limit deliveries for any of types. It returns
	// an empty slice when nothing arrived within the broker's wait window.
	Receive(ctx context.Context, types []string, limit int) ([]Delivery, error)

	// Ack marks d as handled.
	Ack(ctx context.Context, d Delivery) error

	// Close releases the broker's resources.
	Close() error
}
