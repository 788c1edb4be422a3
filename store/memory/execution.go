package memory

import (
	"context"
	"sort"
	"time"

	"github.com/assaka/daino-sub010/execution"
)

func (m *Store) AppendExecution(_ context.Context, r *execution.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.executions = append(m.executions, &cp)
	return nil
}

func (m *Store) ListExecutions(_ context.Context, opts execution.ListOpts) ([]*execution.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*execution.Record, 0)
	for _, r := range m.executions {
		if opts.Matches(r) {
			cp := *r
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(a, b int) bool {
		if !result[a].ExecutedAt.Equal(result[b].ExecutedAt) {
			return result[a].ExecutedAt.After(result[b].ExecutedAt)
		}
		return result[a].ID.String() > result[b].ID.String()
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (m *Store) CountExecutions(_ context.Context, opts execution.ListOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, r := range m.executions {
		if opts.Matches(r) {
			n++
		}
	}
	return n, nil
}

func (m *Store) PurgeExecutions(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.executions[:0]
	var n int64
	for _, r := range m.executions {
		if r.ExecutedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.executions = kept
	return n, nil
}
