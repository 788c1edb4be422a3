package memory

import (
	"context"
	"sort"
	"time"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/cron"
	"github.com/assaka/daino-sub010/id"
)

func copyEntry(e *cron.Entry) *cron.Entry {
	cp := *e
	if e.NextRunAt != nil {
		t := *e.NextRunAt
		cp.NextRunAt = &t
	}
	if e.LastRunAt != nil {
		t := *e.LastRunAt
		cp.LastRunAt = &t
	}
	return &cp
}

func (m *Store) CreateCron(_ context.Context, e *cron.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.crons {
		if existing.Name == e.Name {
			return dispatch.ErrDuplicateCron
		}
	}
	m.crons[e.ID.String()] = copyEntry(e)
	return nil
}

func (m *Store) GetCron(_ context.Context, cronID id.CronID) (*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.crons[cronID.String()]
	if !ok {
		return nil, dispatch.ErrCronNotFound
	}
	return copyEntry(e), nil
}

func (m *Store) GetCronByName(_ context.Context, name string) (*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.crons {
		if e.Name == name {
			return copyEntry(e), nil
		}
	}
	return nil, dispatch.ErrCronNotFound
}

func (m *Store) ListCrons(_ context.Context) ([]*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cron.Entry, 0, len(m.crons))
	for _, e := range m.crons {
		result = append(result, copyEntry(e))
	}
	sort.Slice(result, func(a, b int) bool { return result[a].Name < result[b].Name })
	return result, nil
}

func (m *Store) ListDueCrons(_ context.Context, now time.Time) ([]*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cron.Entry, 0)
	for _, e := range m.crons {
		if !e.IsActive || e.NextRunAt == nil || e.NextRunAt.After(now) {
			continue
		}
		result = append(result, copyEntry(e))
	}
	sort.Slice(result, func(a, b int) bool {
		if !result[a].NextRunAt.Equal(*result[b].NextRunAt) {
			return result[a].NextRunAt.Before(*result[b].NextRunAt)
		}
		return result[a].Name < result[b].Name
	})
	return result, nil
}

func (m *Store) UpdateCron(_ context.Context, e *cron.Entry, expected *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.crons[e.ID.String()]
	if !ok {
		return dispatch.ErrCronNotFound
	}
	if !sameTime(cur.NextRunAt, expected) {
		return dispatch.ErrCronConflict
	}
	for key, other := range m.crons {
		if key != e.ID.String() && other.Name == e.Name {
			return dispatch.ErrDuplicateCron
		}
	}

	updated := copyEntry(e)
	updated.RunCount = cur.RunCount
	updated.SuccessCount = cur.SuccessCount
	updated.FailureCount = cur.FailureCount
	updated.LastRunAt = cur.LastRunAt
	updated.CreatedAt = cur.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	m.crons[e.ID.String()] = updated
	return nil
}

func (m *Store) DeleteCron(_ context.Context, cronID id.CronID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.crons[cronID.String()]; !ok {
		return dispatch.ErrCronNotFound
	}
	delete(m.crons, cronID.String())
	return nil
}

func (m *Store) AdvanceCron(_ context.Context, cronID id.CronID, expected, next, ranAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.crons[cronID.String()]
	if !ok {
		return false, dispatch.ErrCronNotFound
	}
	if e.NextRunAt == nil || !e.NextRunAt.Equal(expected) {
		return false, nil
	}
	n, r := next, ranAt
	e.NextRunAt = &n
	e.LastRunAt = &r
	e.RunCount++
	e.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *Store) MarkCronInvalid(_ context.Context, cronID id.CronID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.crons[cronID.String()]
	if !ok {
		return dispatch.ErrCronNotFound
	}
	e.NextRunAt = nil
	e.LastError = reason
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Store) RecordCronResult(_ context.Context, cronID id.CronID, succeeded bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.crons[cronID.String()]
	if !ok {
		return dispatch.ErrCronNotFound
	}
	if succeeded {
		e.SuccessCount++
		e.LastError = ""
	} else {
		e.FailureCount++
		e.LastError = errMsg
	}
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
