package job

import (
	"context"
	"encoding/json"
	"fmt"
)

// Definition binds a job type name to a typed handler. The payload T is
// decoded from the stored JSON before the handler runs and the result R is
// encoded back into the job's result column.
type Definition[T, R any] struct {
	Name    string
	Handler func(ctx context.Context, payload T) (R, error)

	// Opts seed every submission of this type; per-submit options win.
	Opts Options
}

// NewDefinition creates a typed job definition with DefaultOptions
// overridden by opts.
func NewDefinition[T, R any](name string, handler func(ctx context.Context, payload T) (R, error), opts ...Option) *Definition[T, R] {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Definition[T, R]{Name: name, Handler: handler, Opts: o}
}

// Encode marshals a payload for submission under this definition's type.
func (d *Definition[T, R]) Encode(payload T) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", d.Name, err)
	}
	return b, nil
}
