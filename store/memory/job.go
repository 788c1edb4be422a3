package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

func copyJob(j *job.Job) *job.Job {
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func (m *Store) InsertJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return dispatch.ErrJobAlreadyExists
	}
	m.jobs[key] = copyJob(j)
	return nil
}

// ClaimJobs picks eligible pending jobs in claim order and flips them to
// claimed while holding the write lock.
func (m *Store) ClaimJobs(_ context.Context, opts job.ClaimOpts) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	candidates := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.Status != job.StatusPending || j.RunAt.After(now) {
			continue
		}
		if len(opts.Types) > 0 && !slices.Contains(opts.Types, j.Type) {
			continue
		}
		candidates = append(candidates, j)
	}

	sort.Slice(candidates, func(a, b int) bool {
		ja, jb := candidates[a], candidates[b]
		if ra, rb := ja.Priority.Rank(), jb.Priority.Rank(); ra != rb {
			return ra < rb
		}
		if !ja.CreatedAt.Equal(jb.CreatedAt) {
			return ja.CreatedAt.Before(jb.CreatedAt)
		}
		return ja.ID.String() < jb.ID.String()
	})

	if opts.Limit > 0 && len(candidates) > opts.Limit {
		candidates = candidates[:opts.Limit]
	}

	claimed := make([]*job.Job, len(candidates))
	claimID := id.NewClaimID()
	for i, j := range candidates {
		claim(j, opts.WorkerID, claimID, now)
		claimed[i] = copyJob(j)
	}
	return claimed, nil
}

func (m *Store) ClaimJob(_ context.Context, jobID id.JobID, workerID id.WorkerID) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, dispatch.ErrJobNotFound
	}
	now := time.Now().UTC()
	if j.Status != job.StatusPending || j.RunAt.After(now) {
		return nil, dispatch.ErrClaimLost
	}
	claim(j, workerID, id.NewClaimID(), now)
	return copyJob(j), nil
}

func claim(j *job.Job, workerID id.WorkerID, claimID id.ClaimID, now time.Time) {
	started := now
	j.Status = job.StatusClaimed
	j.WorkerID = workerID
	j.ClaimID = claimID
	j.StartedAt = &started
	j.UpdatedAt = now
}

// held returns the job if it is still claimed under claimID.
func (m *Store) held(jobID id.JobID, claimID id.ClaimID) (*job.Job, error) {
	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, dispatch.ErrJobNotFound
	}
	if !j.Status.IsClaimed() || claimID.IsNil() || j.ClaimID.String() != claimID.String() {
		return nil, dispatch.ErrClaimLost
	}
	return j, nil
}

func (m *Store) MarkRunning(_ context.Context, jobID id.JobID, claimID id.ClaimID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.held(jobID, claimID)
	if err != nil {
		return err
	}
	j.Status = job.StatusRunning
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Store) FinishJob(_ context.Context, j *job.Job, claimID id.ClaimID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.held(j.ID, claimID)
	if err != nil {
		return err
	}
	cur.Status = j.Status
	cur.Result = j.Result
	cur.ErrorMessage = j.ErrorMessage
	cur.RetryCount = j.RetryCount
	cur.RunAt = j.RunAt
	cur.WorkerID = j.WorkerID
	cur.ClaimID = j.ClaimID
	fin := copyJob(j)
	cur.StartedAt = fin.StartedAt
	cur.CompletedAt = fin.CompletedAt
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Store) ReleaseJobs(_ context.Context, jobs []*job.Job, runAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rel := range jobs {
		j, ok := m.jobs[rel.ID.String()]
		if !ok || j.Status != job.StatusClaimed || rel.ClaimID.IsNil() || j.ClaimID.String() != rel.ClaimID.String() {
			continue
		}
		j.Status = job.StatusPending
		j.WorkerID = id.Nil
		j.ClaimID = id.Nil
		j.StartedAt = nil
		j.RunAt = runAt
		j.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, dispatch.ErrJobNotFound
	}
	return copyJob(j), nil
}

func (m *Store) CancelJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, dispatch.ErrJobNotFound
	}
	if j.Status != job.StatusPending {
		return copyJob(j), dispatch.ErrJobNotPending
	}
	now := time.Now().UTC()
	j.Status = job.StatusCancelled
	j.CompletedAt = &now
	j.UpdatedAt = now
	return copyJob(j), nil
}

func (m *Store) RetryJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, dispatch.ErrJobNotFound
	}
	if j.Status != job.StatusFailed {
		return nil, dispatch.ErrInvalidState
	}
	now := time.Now().UTC()
	j.Status = job.StatusPending
	j.RetryCount = 0
	j.WorkerID = id.Nil
	j.ClaimID = id.Nil
	j.StartedAt = nil
	j.CompletedAt = nil
	j.RunAt = now
	j.UpdatedAt = now
	return copyJob(j), nil
}

func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		if opts.StoreID != "" && j.StoreID != opts.StoreID {
			continue
		}
		if !opts.CronID.IsNil() && j.CronID.String() != opts.CronID.String() {
			continue
		}
		result = append(result, copyJob(j))
	}

	sort.Slice(result, func(a, b int) bool {
		if !result[a].CreatedAt.Equal(result[b].CreatedAt) {
			return result[a].CreatedAt.After(result[b].CreatedAt)
		}
		return result[a].ID.String() > result[b].ID.String()
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, j := range m.jobs {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		if opts.StoreID != "" && j.StoreID != opts.StoreID {
			continue
		}
		n++
	}
	return n, nil
}

func (m *Store) ListStaleJobs(_ context.Context, cutoff time.Time) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stale := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.Status.IsClaimed() && j.StartedAt != nil && j.StartedAt.Before(cutoff) {
			stale = append(stale, copyJob(j))
		}
	}
	sort.Slice(stale, func(a, b int) bool { return stale[a].StartedAt.Before(*stale[b].StartedAt) })
	return stale, nil
}

func (m *Store) PurgeJobs(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, j := range m.jobs {
		if j.Status.IsTerminal() && j.UpdatedAt.Before(cutoff) {
			delete(m.jobs, key)
			n++
		}
	}
	return n, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
