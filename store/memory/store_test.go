package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/cron"
	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
)

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Job store tests
// ──────────────────────────────────────────────────

func newJob(jobType string, priority job.Priority, created time.Time) *job.Job {
	return &job.Job{
		Entity:     dispatch.Entity{CreatedAt: created, UpdatedAt: created},
		ID:         id.NewJobID(),
		Type:       jobType,
		Payload:    []byte(`{"test":true}`),
		Status:     job.StatusPending,
		Priority:   priority,
		MaxRetries: 3,
		RunAt:      time.Now().UTC().Add(-time.Second),
	}
}

func TestInsertAndGet(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newJob("echo", job.PriorityNormal, time.Now().UTC())
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertJob(ctx, j); !errors.Is(err, dispatch.ErrJobAlreadyExists) {
		t.Fatalf("duplicate insert err = %v", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != "echo" || got.Status != job.StatusPending {
		t.Errorf("GetJob = %+v", got)
	}

	got.Status = job.StatusFailed
	again, _ := s.GetJob(ctx, j.ID)
	if again.Status != job.StatusPending {
		t.Error("mutating a returned job changed the stored copy")
	}

	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, dispatch.ErrJobNotFound) {
		t.Errorf("missing job err = %v", err)
	}
}

func TestClaimOrder(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	low := newJob("a", job.PriorityLow, base)
	normalOld := newJob("a", job.PriorityNormal, base)
	normalNew := newJob("a", job.PriorityNormal, base.Add(time.Second))
	urgent := newJob("a", job.PriorityUrgent, base.Add(2*time.Second))
	for _, j := range []*job.Job{low, normalNew, urgent, normalOld} {
		if err := s.InsertJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	worker := id.NewWorkerID()
	want := []*job.Job{urgent, normalOld, normalNew, low}
	for i, w := range want {
		claimed, err := s.ClaimJobs(ctx, job.ClaimOpts{Limit: 1, WorkerID: worker})
		if err != nil {
			t.Fatal(err)
		}
		if len(claimed) != 1 {
			t.Fatalf("claim %d returned %d jobs", i, len(claimed))
		}
		if claimed[0].ID.String() != w.ID.String() {
			t.Errorf("claim %d = %s (%s), want %s (%s)", i,
				claimed[0].ID, claimed[0].Priority, w.ID, w.Priority)
		}
		if claimed[0].Status != job.StatusClaimed || claimed[0].StartedAt == nil {
			t.Errorf("claimed job not flipped: %+v", claimed[0])
		}
		if claimed[0].WorkerID.String() != worker.String() {
			t.Errorf("worker = %s, want %s", claimed[0].WorkerID, worker)
		}
	}

	rest, _ := s.ClaimJobs(ctx, job.ClaimOpts{Limit: 10, WorkerID: worker})
	if len(rest) != 0 {
		t.Errorf("expected nothing left, got %d", len(rest))
	}
}

func TestClaimSkipsFutureAndFiltersTypes(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	future := newJob("email", job.PriorityNormal, time.Now().UTC())
	future.RunAt = time.Now().UTC().Add(time.Hour)
	email := newJob("email", job.PriorityNormal, time.Now().UTC())
	report := newJob("report", job.PriorityNormal, time.Now().UTC())
	for _, j := range []*job.Job{future, email, report} {
		_ = s.InsertJob(ctx, j)
	}

	claimed, err := s.ClaimJobs(ctx, job.ClaimOpts{Limit: 10, WorkerID: id.NewWorkerID(), Types: []string{"email"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 || claimed[0].ID.String() != email.ID.String() {
		t.Fatalf("claimed = %v, want only %s", claimed, email.ID)
	}
}

func TestConcurrentClaimsAreDisjoint(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	const total = 200
	for range total {
		_ = s.InsertJob(ctx, newJob("work", job.PriorityNormal, time.Now().UTC()))
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker := id.NewWorkerID()
			for {
				claimed, err := s.ClaimJobs(ctx, job.ClaimOpts{Limit: 7, WorkerID: worker})
				if err != nil || len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, j := range claimed {
					seen[j.ID.String()]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("claimed %d distinct jobs, want %d", len(seen), total)
	}
	for jobID, n := range seen {
		if n != 1 {
			t.Errorf("job %s claimed %d times", jobID, n)
		}
	}
}

func TestClaimGuard(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newJob("guarded", job.PriorityNormal, time.Now().UTC())
	_ = s.InsertJob(ctx, j)

	worker := id.NewWorkerID()
	claimed, err := s.ClaimJob(ctx, j.ID, worker)
	if err != nil {
		t.Fatal(err)
	}
	if claimed.ClaimID.IsNil() {
		t.Fatal("claim should carry a claim id")
	}
	holder, intruder := claimed.ClaimID, id.NewClaimID()
	if _, err := s.ClaimJob(ctx, j.ID, id.NewWorkerID()); !errors.Is(err, dispatch.ErrClaimLost) {
		t.Fatalf("second ClaimJob err = %v, want ErrClaimLost", err)
	}
	if err := s.MarkRunning(ctx, j.ID, intruder); !errors.Is(err, dispatch.ErrClaimLost) {
		t.Fatalf("MarkRunning by intruder err = %v", err)
	}
	if err := s.MarkRunning(ctx, j.ID, holder); err != nil {
		t.Fatal(err)
	}

	claimed.Status = job.StatusCompleted
	claimed.Result = []byte(`"ok"`)
	if err := s.FinishJob(ctx, claimed, intruder); !errors.Is(err, dispatch.ErrClaimLost) {
		t.Fatalf("FinishJob by intruder err = %v", err)
	}
	if err := s.FinishJob(ctx, claimed, holder); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishJob(ctx, claimed, holder); !errors.Is(err, dispatch.ErrClaimLost) {
		t.Fatalf("FinishJob on terminal job err = %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.Status != job.StatusCompleted || string(got.Result) != `"ok"` {
		t.Errorf("final job = %+v", got)
	}
}

func TestReclaimBySameWorkerRevokesEarlierClaim(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newJob("reclaimed", job.PriorityNormal, time.Now().UTC())
	_ = s.InsertJob(ctx, j)

	worker := id.NewWorkerID()
	first, err := s.ClaimJob(ctx, j.ID, worker)
	if err != nil {
		t.Fatal(err)
	}

	// Requeued by the sweeper, then claimed again by the same process.
	requeued := *first
	requeued.Status = job.StatusPending
	requeued.WorkerID = id.Nil
	requeued.ClaimID = id.Nil
	requeued.StartedAt = nil
	requeued.RetryCount = 1
	if err := s.FinishJob(ctx, &requeued, first.ClaimID); err != nil {
		t.Fatal(err)
	}
	second, err := s.ClaimJob(ctx, j.ID, worker)
	if err != nil {
		t.Fatal(err)
	}
	if second.ClaimID.String() == first.ClaimID.String() {
		t.Fatal("re-claim reused the claim id")
	}

	late := *first
	late.Status = job.StatusCompleted
	if err := s.FinishJob(ctx, &late, first.ClaimID); !errors.Is(err, dispatch.ErrClaimLost) {
		t.Fatalf("late FinishJob err = %v, want ErrClaimLost", err)
	}
	if err := s.MarkRunning(ctx, j.ID, first.ClaimID); !errors.Is(err, dispatch.ErrClaimLost) {
		t.Fatalf("late MarkRunning err = %v, want ErrClaimLost", err)
	}
	got, _ := s.GetJob(ctx, j.ID)
	if got.Status != job.StatusClaimed || got.ClaimID.String() != second.ClaimID.String() {
		t.Errorf("job = %s claim=%s, want claimed under %s", got.Status, got.ClaimID, second.ClaimID)
	}
}

func TestClaimJobWaitsForRunAt(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newJob("backoff", job.PriorityNormal, time.Now().UTC().Add(time.Hour))
	_ = s.InsertJob(ctx, j)

	if _, err := s.ClaimJob(ctx, j.ID, id.NewWorkerID()); !errors.Is(err, dispatch.ErrClaimLost) {
		t.Fatalf("ClaimJob before run_at err = %v, want ErrClaimLost", err)
	}
	got, _ := s.GetJob(ctx, j.ID)
	if got.Status != job.StatusPending || !got.ClaimID.IsNil() {
		t.Errorf("job = %s claim=%q, want untouched", got.Status, got.ClaimID)
	}
}

func TestReleaseJobs(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	a := newJob("x", job.PriorityNormal, time.Now().UTC())
	b := newJob("x", job.PriorityNormal, time.Now().UTC().Add(time.Millisecond))
	_ = s.InsertJob(ctx, a)
	_ = s.InsertJob(ctx, b)

	claimed, err := s.ClaimJobs(ctx, job.ClaimOpts{Limit: 2, WorkerID: id.NewWorkerID()})
	if err != nil || len(claimed) != 2 {
		t.Fatalf("ClaimJobs = %d, %v", len(claimed), err)
	}
	_ = s.MarkRunning(ctx, b.ID, claimed[1].ClaimID)

	// A claim id from another holder releases nothing.
	foreign := *claimed[0]
	foreign.ClaimID = id.NewClaimID()
	if err := s.ReleaseJobs(ctx, []*job.Job{&foreign}, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetJob(ctx, a.ID); got.Status != job.StatusClaimed {
		t.Fatalf("foreign release changed status to %s", got.Status)
	}

	runAt := time.Now().UTC().Add(time.Minute)
	if err := s.ReleaseJobs(ctx, claimed, runAt); err != nil {
		t.Fatal(err)
	}

	gotA, _ := s.GetJob(ctx, a.ID)
	if gotA.Status != job.StatusPending || !gotA.WorkerID.IsNil() || !gotA.ClaimID.IsNil() || gotA.RetryCount != 0 {
		t.Errorf("released job = %+v", gotA)
	}
	if !gotA.RunAt.Equal(runAt) {
		t.Errorf("RunAt = %v, want %v", gotA.RunAt, runAt)
	}
	gotB, _ := s.GetJob(ctx, b.ID)
	if gotB.Status != job.StatusRunning {
		t.Errorf("running job should not be released, status = %s", gotB.Status)
	}
}

func TestCancelAndRetry(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	pending := newJob("c", job.PriorityNormal, time.Now().UTC())
	_ = s.InsertJob(ctx, pending)

	got, err := s.CancelJob(ctx, pending.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != job.StatusCancelled || got.CompletedAt == nil {
		t.Errorf("cancelled job = %+v", got)
	}
	got, err = s.CancelJob(ctx, pending.ID)
	if !errors.Is(err, dispatch.ErrJobNotPending) || got.Status != job.StatusCancelled {
		t.Errorf("second cancel = %v, %v", got, err)
	}

	if _, err := s.RetryJob(ctx, pending.ID); !errors.Is(err, dispatch.ErrInvalidState) {
		t.Errorf("retry of cancelled job err = %v", err)
	}

	failed := newJob("c", job.PriorityNormal, time.Now().UTC())
	_ = s.InsertJob(ctx, failed)
	claimed, _ := s.ClaimJob(ctx, failed.ID, id.NewWorkerID())
	claimed.Status = job.StatusFailed
	claimed.RetryCount = 3
	claimed.ErrorMessage = "boom"
	if err := s.FinishJob(ctx, claimed, claimed.ClaimID); err != nil {
		t.Fatal(err)
	}

	retried, err := s.RetryJob(ctx, failed.ID)
	if err != nil {
		t.Fatal(err)
	}
	if retried.Status != job.StatusPending || retried.RetryCount != 0 || !retried.WorkerID.IsNil() {
		t.Errorf("retried job = %+v", retried)
	}
}

func TestListCountStaleAndPurge(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	cronID := id.NewCronID()
	for i := range 5 {
		j := newJob("list", job.PriorityNormal, base.Add(time.Duration(i)*time.Second))
		j.StoreID = "store-1"
		if i < 2 {
			j.CronID = cronID
		}
		_ = s.InsertJob(ctx, j)
	}
	_ = s.InsertJob(ctx, newJob("other", job.PriorityNormal, base))

	page, _ := s.ListJobs(ctx, job.ListOpts{Type: "list", Limit: 2, Offset: 1})
	if len(page) != 2 {
		t.Fatalf("page size = %d", len(page))
	}
	if !page[0].CreatedAt.After(page[1].CreatedAt) {
		t.Error("listing should be newest first")
	}
	byCron, _ := s.ListJobs(ctx, job.ListOpts{CronID: cronID})
	if len(byCron) != 2 {
		t.Errorf("cron filter = %d, want 2", len(byCron))
	}
	n, _ := s.CountJobs(ctx, job.CountOpts{StoreID: "store-1"})
	if n != 5 {
		t.Errorf("CountJobs(store-1) = %d", n)
	}

	worker := id.NewWorkerID()
	claimed, _ := s.ClaimJobs(ctx, job.ClaimOpts{Limit: 1, WorkerID: worker, Types: []string{"other"}})
	stale, _ := s.ListStaleJobs(ctx, time.Now().UTC().Add(time.Minute))
	if len(stale) != 1 || stale[0].ID.String() != claimed[0].ID.String() {
		t.Errorf("stale = %v", stale)
	}
	none, _ := s.ListStaleJobs(ctx, time.Now().UTC().Add(-time.Minute))
	if len(none) != 0 {
		t.Errorf("fresh claim reported stale: %v", none)
	}

	claimed[0].Status = job.StatusCompleted
	_ = s.FinishJob(ctx, claimed[0], claimed[0].ClaimID)
	purged, _ := s.PurgeJobs(ctx, time.Now().UTC().Add(time.Second))
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
}

// ──────────────────────────────────────────────────
// Cron store tests
// ──────────────────────────────────────────────────

func newEntry(name string, next time.Time) *cron.Entry {
	return &cron.Entry{
		Entity:     dispatch.NewEntity(),
		ID:         id.NewCronID(),
		Name:       name,
		Expression: "*/5 * * * *",
		JobType:    "report",
		IsActive:   true,
		NextRunAt:  &next,
	}
}

func TestCronCRUD(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	e := newEntry("nightly", time.Now().UTC())
	if err := s.CreateCron(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateCron(ctx, newEntry("nightly", time.Now().UTC())); !errors.Is(err, dispatch.ErrDuplicateCron) {
		t.Fatalf("duplicate name err = %v", err)
	}

	byName, err := s.GetCronByName(ctx, "nightly")
	if err != nil || byName.ID.String() != e.ID.String() {
		t.Fatalf("GetCronByName = %v, %v", byName, err)
	}

	// An edit read before the scheduler advanced the entry must not land.
	stale := *e
	advanced := time.Now().UTC().Add(time.Hour)
	_, _ = s.AdvanceCron(ctx, e.ID, *e.NextRunAt, advanced, time.Now().UTC())
	stale.IsPaused = true
	if err := s.UpdateCron(ctx, &stale, e.NextRunAt); !errors.Is(err, dispatch.ErrCronConflict) {
		t.Fatalf("UpdateCron with stale next_run_at err = %v, want ErrCronConflict", err)
	}
	if got, _ := s.GetCron(ctx, e.ID); got.IsPaused || !got.NextRunAt.Equal(advanced) {
		t.Fatalf("conflicting edit landed: paused=%v next=%v", got.IsPaused, got.NextRunAt)
	}

	cur, _ := s.GetCron(ctx, e.ID)
	cur.IsPaused = true
	cur.RunCount = 99
	if err := s.UpdateCron(ctx, cur, cur.NextRunAt); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetCron(ctx, e.ID)
	if !got.IsPaused {
		t.Error("UpdateCron did not write flags")
	}
	if got.RunCount != 1 {
		t.Errorf("UpdateCron should not touch counters, RunCount = %d", got.RunCount)
	}
	if err := s.UpdateCron(ctx, &cron.Entry{ID: id.NewCronID()}, nil); !errors.Is(err, dispatch.ErrCronNotFound) {
		t.Errorf("UpdateCron of missing entry err = %v", err)
	}

	_ = s.CreateCron(ctx, newEntry("audit", time.Now().UTC()))
	all, _ := s.ListCrons(ctx)
	if len(all) != 2 || all[0].Name != "audit" {
		t.Errorf("ListCrons = %v", all)
	}

	if err := s.DeleteCron(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetCron(ctx, e.ID); !errors.Is(err, dispatch.ErrCronNotFound) {
		t.Errorf("deleted cron err = %v", err)
	}
}

func TestListDueCrons(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	due := newEntry("due", now.Add(-time.Minute))
	paused := newEntry("paused", now.Add(-time.Minute))
	paused.IsPaused = true
	inactive := newEntry("inactive", now.Add(-time.Minute))
	inactive.IsActive = false
	later := newEntry("later", now.Add(time.Minute))
	invalid := newEntry("invalid", now)
	invalid.NextRunAt = nil
	for _, e := range []*cron.Entry{due, paused, inactive, later, invalid} {
		_ = s.CreateCron(ctx, e)
	}

	got, err := s.ListDueCrons(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	names := make(map[string]bool)
	for _, e := range got {
		names[e.Name] = true
	}
	if len(got) != 2 || !names["due"] || !names["paused"] {
		t.Errorf("due crons = %v, want due and paused", names)
	}
}

func TestAdvanceCronIsCompareAndSet(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	now := time.Now().UTC()
	e := newEntry("cas", now.Add(-time.Second))
	_ = s.CreateCron(ctx, e)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.AdvanceCron(ctx, e.ID, *e.NextRunAt, now.Add(5*time.Minute), now)
			if err != nil {
				t.Error(err)
				return
			}
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
	got, _ := s.GetCron(ctx, e.ID)
	if got.RunCount != 1 || got.LastRunAt == nil || !got.NextRunAt.Equal(now.Add(5*time.Minute)) {
		t.Errorf("advanced entry = %+v", got)
	}
}

func TestCronResultAndInvalid(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	e := newEntry("results", time.Now().UTC())
	_ = s.CreateCron(ctx, e)

	_ = s.RecordCronResult(ctx, e.ID, false, "timeout")
	got, _ := s.GetCron(ctx, e.ID)
	if got.FailureCount != 1 || got.LastError != "timeout" {
		t.Errorf("after failure = %+v", got)
	}
	_ = s.RecordCronResult(ctx, e.ID, true, "")
	got, _ = s.GetCron(ctx, e.ID)
	if got.SuccessCount != 1 || got.LastError != "" {
		t.Errorf("after success = %+v", got)
	}

	_ = s.MarkCronInvalid(ctx, e.ID, "bad expression")
	got, _ = s.GetCron(ctx, e.ID)
	if got.NextRunAt != nil || got.LastError != "bad expression" {
		t.Errorf("after invalidate = %+v", got)
	}
}

// ──────────────────────────────────────────────────
// Execution store tests
// ──────────────────────────────────────────────────

func TestExecutions(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	base := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	cronID := id.NewCronID()
	for i := range 6 {
		rec := &execution.Record{
			ID:         id.NewExecutionID(),
			JobType:    "report",
			ExecutedAt: base.Add(time.Duration(i) * time.Hour),
			Status:     execution.StatusSucceeded,
			Backend:    execution.BackendPoller,
		}
		if i%2 == 0 {
			rec.CronID = cronID
			rec.Status = execution.StatusMaterialized
		}
		if err := s.AppendExecution(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		opts  execution.ListOpts
		count int64
		first time.Time
	}{
		{"all", execution.ListOpts{}, 6, base.Add(5 * time.Hour)},
		{"by cron", execution.ListOpts{CronID: cronID}, 3, base.Add(4 * time.Hour)},
		{"by status", execution.ListOpts{Status: execution.StatusSucceeded}, 3, base.Add(5 * time.Hour)},
		{"window", execution.ListOpts{From: base.Add(time.Hour), To: base.Add(3 * time.Hour)}, 2, base.Add(2 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _ := s.CountExecutions(ctx, tt.opts)
			if n != tt.count {
				t.Errorf("count = %d, want %d", n, tt.count)
			}
			recs, _ := s.ListExecutions(ctx, tt.opts)
			if int64(len(recs)) != tt.count {
				t.Fatalf("list = %d, want %d", len(recs), tt.count)
			}
			if !recs[0].ExecutedAt.Equal(tt.first) {
				t.Errorf("first = %v, want %v", recs[0].ExecutedAt, tt.first)
			}
		})
	}

	page, _ := s.ListExecutions(ctx, execution.ListOpts{Limit: 2, Offset: 4})
	if len(page) != 2 || !page[1].ExecutedAt.Equal(base) {
		t.Errorf("last page = %v", page)
	}

	purged, _ := s.PurgeExecutions(ctx, base.Add(2*time.Hour))
	if purged != 2 {
		t.Errorf("purged = %d, want 2", purged)
	}
	n, _ := s.CountExecutions(ctx, execution.ListOpts{})
	if n != 4 {
		t.Errorf("remaining = %d, want 4", n)
	}
}
