package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/backoff"
	brokermem "github.com/assaka/daino-sub010/broker/memory"
	"github.com/assaka/daino-sub010/cron"
	"github.com/assaka/daino-sub010/engine"
	"github.com/assaka/daino-sub010/execution"
	"github.com/assaka/daino-sub010/id"
	"github.com/assaka/daino-sub010/job"
	"github.com/assaka/daino-sub010/scope"
	"github.com/assaka/daino-sub010/store/memory"
)

var discard = slog.New(slog.DiscardHandler)

type echo struct {
	Msg string `json:"msg"`
}

func newEngine(t *testing.T, dopts []dispatch.Option, opts ...engine.Option) (*engine.Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	base := []dispatch.Option{
		dispatch.WithStore(s),
		dispatch.WithLogger(discard),
		dispatch.WithConcurrency(1),
	}
	d, err := dispatch.New(append(base, dopts...)...)
	if err != nil {
		t.Fatalf("dispatch.New: %v", err)
	}
	opts = append([]engine.Option{engine.WithBackoff(backoff.Constant(0))}, opts...)
	eng, err := engine.Build(d, opts...)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	return eng, s
}

func registerEcho(eng *engine.Engine) {
	engine.Register(eng, job.NewDefinition("echo",
		func(_ context.Context, in echo) (echo, error) { return in, nil },
	))
}

func tick(t *testing.T, eng *engine.Engine) int {
	t.Helper()
	n, err := eng.Poller().Tick(context.Background())
	if err != nil {
		t.Fatalf("poller tick: %v", err)
	}
	return n
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngine_EchoScenario(t *testing.T) {
	eng, _ := newEngine(t, nil)
	registerEcho(eng)
	ctx := context.Background()

	j, err := eng.Submit(ctx, "echo", []byte(`{"msg":"hi"}`), job.WithPriority(job.PriorityHigh))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if j.Status != job.StatusPending || j.Priority != job.PriorityHigh {
		t.Fatalf("submitted job = %+v", j)
	}

	if n := tick(t, eng); n != 1 {
		t.Fatalf("tick started %d jobs, want 1", n)
	}

	st, err := eng.GetStatus(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.Status != job.StatusCompleted {
		t.Fatalf("status = %q, want completed (error %q)", st.Status, st.ErrorMessage)
	}
	if string(st.Result) != `{"msg":"hi"}` {
		t.Errorf("result = %s", st.Result)
	}

	page, err := eng.ListExecutions(ctx, execution.ListOpts{JobID: j.ID})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if page.Total != 1 || page.Records[0].Status != execution.StatusSucceeded ||
		page.Records[0].Backend != execution.BackendPoller {
		t.Errorf("history = %+v", page.Records)
	}
}

func TestEngine_EnqueueTypedAndScope(t *testing.T) {
	eng, _ := newEngine(t, nil)
	ctx := scope.WithStoreID(context.Background(), "store-42")

	j, err := engine.Enqueue(ctx, eng, "email:notify", echo{Msg: "welcome"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if j.StoreID != "store-42" {
		t.Errorf("StoreID = %q, want captured store-42", j.StoreID)
	}

	j, err = engine.Enqueue(ctx, eng, "email:notify", echo{}, job.WithStoreID("store-7"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if j.StoreID != "store-7" {
		t.Errorf("explicit StoreID = %q, want store-7", j.StoreID)
	}
}

func TestEngine_SubmitDefinition(t *testing.T) {
	eng, _ := newEngine(t, nil)
	def := job.NewDefinition("echo",
		func(_ context.Context, in echo) (echo, error) { return in, nil },
	)
	engine.Register(eng, def)

	j, err := engine.SubmitDefinition(context.Background(), eng, def, echo{Msg: "typed"})
	if err != nil {
		t.Fatalf("SubmitDefinition: %v", err)
	}
	if j.Type != "echo" || string(j.Payload) != `{"msg":"typed"}` {
		t.Fatalf("job = type %q payload %s", j.Type, j.Payload)
	}
	tick(t, eng)
	st, err := eng.GetStatus(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.Status != job.StatusCompleted || string(st.Result) != `{"msg":"typed"}` {
		t.Errorf("report = %+v", st)
	}
}

func TestEngine_SubmitValidation(t *testing.T) {
	eng, _ := newEngine(t, nil)
	ctx := context.Background()

	if _, err := eng.Submit(ctx, "", nil); !errors.Is(err, dispatch.ErrEmptyJobType) {
		t.Errorf("empty type err = %v", err)
	}
	if _, err := eng.Submit(ctx, "echo", nil, job.WithPriority("critical")); !errors.Is(err, dispatch.ErrInvalidPriority) {
		t.Errorf("bad priority err = %v", err)
	}

	j, err := eng.Submit(ctx, "not-registered-here", nil)
	if err != nil {
		t.Fatalf("unknown types must be accepted: %v", err)
	}
	if string(j.Payload) != "{}" {
		t.Errorf("empty payload stored as %q", j.Payload)
	}
}

func TestEngine_DefinitionDefaultsApply(t *testing.T) {
	eng, _ := newEngine(t, nil)
	engine.Register(eng, job.NewDefinition("translation:bulk",
		func(_ context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		job.WithPriority(job.PriorityLow),
		job.WithMaxRetries(7),
	))

	j, err := eng.Submit(context.Background(), "translation:bulk", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if j.Priority != job.PriorityLow || j.MaxRetries != 7 {
		t.Errorf("job = priority %q retries %d, want low/7", j.Priority, j.MaxRetries)
	}

	j, err = eng.Submit(context.Background(), "translation:bulk", nil, job.WithMaxRetries(1))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if j.MaxRetries != 1 {
		t.Errorf("caller option should win, got %d retries", j.MaxRetries)
	}
}

func TestEngine_PriorityOrder(t *testing.T) {
	eng, _ := newEngine(t, []dispatch.Option{dispatch.WithBatchSize(10)})
	ctx := context.Background()

	var (
		mu    sync.Mutex
		order []string
	)
	eng.RegisterFunc("ordered", func(_ context.Context, j *job.Job) ([]byte, error) {
		mu.Lock()
		order = append(order, string(j.Priority))
		mu.Unlock()
		return nil, nil
	})

	for _, p := range []job.Priority{job.PriorityLow, job.PriorityUrgent, job.PriorityNormal} {
		if _, err := eng.Submit(ctx, "ordered", nil, job.WithPriority(p)); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	tick(t, eng)

	want := []string{"urgent", "normal", "low"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestEngine_RetryExhaustion(t *testing.T) {
	eng, _ := newEngine(t, nil)
	ctx := context.Background()

	var attempts atomic.Int32
	eng.RegisterFunc("flaky", func(_ context.Context, _ *job.Job) ([]byte, error) {
		attempts.Add(1)
		return nil, errors.New("upstream down")
	})

	j, err := eng.Submit(ctx, "flaky", nil, job.WithMaxRetries(2))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	for range 5 {
		tick(t, eng)
	}

	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	st, err := eng.GetStatus(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.Status != job.StatusFailed || st.ErrorMessage != "upstream down" || st.RetryCount != 2 {
		t.Errorf("status = %+v", st)
	}

	retried, err := eng.Retry(ctx, j.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.Status != job.StatusPending || retried.RetryCount != 0 {
		t.Errorf("retried = %+v", retried)
	}
	if _, err := eng.Retry(ctx, j.ID); !errors.Is(err, dispatch.ErrInvalidState) {
		t.Errorf("retry of pending job err = %v", err)
	}
}

func TestEngine_PermanentFailure(t *testing.T) {
	eng, _ := newEngine(t, nil)
	ctx := context.Background()

	var attempts atomic.Int32
	eng.RegisterFunc("import:products", func(_ context.Context, _ *job.Job) ([]byte, error) {
		attempts.Add(1)
		return nil, job.Permanent(errors.New("malformed csv"))
	})
	j, _ := eng.Submit(ctx, "import:products", nil, job.WithMaxRetries(5))
	tick(t, eng)
	tick(t, eng)

	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
	st, _ := eng.GetStatus(ctx, j.ID)
	if st.Status != job.StatusFailed || st.ErrorMessage != "malformed csv" {
		t.Errorf("status = %+v", st)
	}
}

func TestEngine_Cancel(t *testing.T) {
	eng, s := newEngine(t, nil)
	registerEcho(eng)
	ctx := context.Background()

	pending, _ := eng.Submit(ctx, "echo", nil)
	res, err := eng.Cancel(ctx, pending.ID)
	if err != nil || res != job.CancelCancelled {
		t.Fatalf("Cancel(pending) = %q, %v", res, err)
	}
	res, err = eng.Cancel(ctx, pending.ID)
	if err != nil || res != job.CancelAlreadyFinished {
		t.Errorf("Cancel(cancelled) = %q, %v", res, err)
	}

	claimed, _ := eng.Submit(ctx, "echo", nil)
	if _, err := s.ClaimJob(ctx, claimed.ID, id.NewWorkerID()); err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	res, err = eng.Cancel(ctx, claimed.ID)
	if err != nil || res != job.CancelAlreadyRunning {
		t.Errorf("Cancel(claimed) = %q, %v", res, err)
	}
	if st, _ := eng.GetStatus(ctx, claimed.ID); st.Status != job.StatusClaimed {
		t.Errorf("cancel must not touch a claimed job, status %q", st.Status)
	}

	if _, err := eng.Cancel(ctx, id.NewJobID()); !errors.Is(err, dispatch.ErrJobNotFound) {
		t.Errorf("Cancel(missing) err = %v", err)
	}

	// A cancelled job is never executed.
	if n := tick(t, eng); n != 0 {
		t.Errorf("tick started %d jobs, want 0", n)
	}
}

func TestEngine_StaleClaimIsRecoveredAndRerun(t *testing.T) {
	eng, s := newEngine(t, []dispatch.Option{dispatch.WithStaleClaimTimeout(time.Millisecond)})
	registerEcho(eng)
	ctx := context.Background()

	j, _ := eng.Submit(ctx, "echo", []byte(`{"msg":"again"}`))
	if _, err := s.ClaimJob(ctx, j.ID, id.NewWorkerID()); err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	n, err := eng.Sweeper().Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v", n, err)
	}
	tick(t, eng)

	st, _ := eng.GetStatus(ctx, j.ID)
	if st.Status != job.StatusCompleted || st.RetryCount != 1 {
		t.Errorf("status = %+v, want completed after one recovery", st)
	}
}

func TestEngine_RevokedClaimCannotWriteBack(t *testing.T) {
	eng, s := newEngine(t, []dispatch.Option{dispatch.WithStaleClaimTimeout(time.Millisecond)})
	ctx := context.Background()

	j, _ := eng.Submit(ctx, "echo", []byte(`{"msg":"late"}`))
	first, err := s.ClaimJob(ctx, j.ID, eng.WorkerID())
	if err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if err := s.MarkRunning(ctx, j.ID, first.ClaimID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if n, err := eng.Sweeper().Sweep(ctx); err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v", n, err)
	}

	// Same process claims the job again.
	second, err := s.ClaimJob(ctx, j.ID, eng.WorkerID())
	if err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if second.ClaimID.String() == first.ClaimID.String() {
		t.Fatal("re-claim reused the revoked claim id")
	}

	now := time.Now().UTC()
	first.Status = job.StatusCompleted
	first.Result = []byte(`{"msg":"stale"}`)
	first.CompletedAt = &now
	if err := s.FinishJob(ctx, first, first.ClaimID); !errors.Is(err, dispatch.ErrClaimLost) {
		t.Fatalf("revoked write-back err = %v, want ErrClaimLost", err)
	}
	if err := s.MarkRunning(ctx, j.ID, first.ClaimID); !errors.Is(err, dispatch.ErrClaimLost) {
		t.Fatalf("revoked MarkRunning err = %v, want ErrClaimLost", err)
	}

	got, _ := eng.GetJob(ctx, j.ID)
	if got.Status != job.StatusClaimed || got.ClaimID.String() != second.ClaimID.String() {
		t.Fatalf("job = %s claim %q, want claimed under %q", got.Status, got.ClaimID, second.ClaimID)
	}
	if got.Result != nil {
		t.Errorf("stale result leaked: %s", got.Result)
	}
}

func TestEngine_BrokerBackend(t *testing.T) {
	b := brokermem.New(brokermem.WithWait(20 * time.Millisecond))
	eng, _ := newEngine(t, []dispatch.Option{dispatch.WithPollInterval(time.Hour)}, engine.WithBroker(b))
	registerEcho(eng)
	ctx := context.Background()

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = eng.Stop(stopCtx)
	})

	// The first poller tick runs at Start; submit afterwards so only the
	// broker can pick the job up.
	time.Sleep(20 * time.Millisecond)
	j, err := eng.Submit(ctx, "echo", []byte(`{"msg":"via broker"}`))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, func() bool {
		st, err := eng.GetStatus(ctx, j.ID)
		return err == nil && st.Status == job.StatusCompleted
	})

	page, _ := eng.ListExecutions(ctx, execution.ListOpts{JobID: j.ID})
	if page.Total != 1 || page.Records[0].Backend != execution.BackendBroker {
		t.Errorf("history = %+v", page.Records)
	}
}

func TestEngine_DelayedJobIsNotPublished(t *testing.T) {
	b := brokermem.New(brokermem.WithWait(10 * time.Millisecond))
	eng, _ := newEngine(t, nil, engine.WithBroker(b))
	ctx := context.Background()

	if _, err := eng.Submit(ctx, "echo", nil, job.WithRunAt(time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got, _ := b.Receive(ctx, []string{"echo"}, 10); len(got) != 0 {
		t.Errorf("delayed job published %d refs", len(got))
	}

	now, err := eng.Submit(ctx, "echo", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got, _ := b.Receive(ctx, []string{"echo"}, 10)
	if len(got) != 1 || got[0].Ref.JobID.String() != now.ID.String() {
		t.Errorf("deliveries = %+v, want the immediate job", got)
	}
}

func TestEngine_StartStop(t *testing.T) {
	eng, _ := newEngine(t, []dispatch.Option{dispatch.WithPollInterval(10 * time.Millisecond)})
	registerEcho(eng)
	ctx := context.Background()

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	j, _ := eng.Submit(ctx, "echo", []byte(`{"msg":"loop"}`))

	waitFor(t, func() bool {
		st, err := eng.GetStatus(ctx, j.ID)
		return err == nil && st.Status == job.StatusCompleted
	})

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := eng.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Cron administration
// ──────────────────────────────────────────────────

// makeDue moves next_run_at into the past so the next scheduler tick fires.
func makeDue(t *testing.T, eng *engine.Engine, cronID id.CronID) {
	t.Helper()
	ctx := context.Background()
	e, err := eng.GetCron(ctx, cronID)
	if err != nil {
		t.Fatalf("GetCron: %v", err)
	}
	expected := e.NextRunAt
	past := time.Now().UTC().Add(-time.Second)
	e.NextRunAt = &past
	if err := eng.CronStore().UpdateCron(ctx, e, expected); err != nil {
		t.Fatalf("UpdateCron: %v", err)
	}
}

func cronTick(t *testing.T, eng *engine.Engine) int {
	t.Helper()
	n, err := eng.Scheduler().Tick(context.Background())
	if err != nil {
		t.Fatalf("scheduler tick: %v", err)
	}
	return n
}

func TestEngine_PausedCronScenario(t *testing.T) {
	eng, _ := newEngine(t, nil)
	registerEcho(eng)
	ctx := context.Background()

	e, err := eng.CreateCron(ctx, engine.CronSpec{
		Name:          "hourly-echo",
		Expression:    "@hourly",
		JobType:       "echo",
		Configuration: json.RawMessage(`{"msg":"tick"}`),
		StoreID:       "store-1",
	})
	if err != nil {
		t.Fatalf("CreateCron: %v", err)
	}
	makeDue(t, eng, e.ID)

	if _, err := eng.PauseCron(ctx, e.ID); err != nil {
		t.Fatalf("PauseCron: %v", err)
	}
	for range 3 {
		if n := cronTick(t, eng); n != 0 {
			t.Fatalf("paused cron fired %d jobs", n)
		}
	}

	resumed, err := eng.ResumeCron(ctx, e.ID)
	if err != nil {
		t.Fatalf("ResumeCron: %v", err)
	}
	if resumed.State() != cron.StateActive {
		t.Errorf("state = %q, want active", resumed.State())
	}
	if n := cronTick(t, eng); n != 1 {
		t.Fatalf("resumed cron fired %d jobs, want 1", n)
	}
	if n := cronTick(t, eng); n != 0 {
		t.Errorf("second tick fired %d jobs, want 0", n)
	}

	jobs, err := eng.ListJobs(ctx, job.ListOpts{CronID: e.ID})
	if err != nil || len(jobs) != 1 {
		t.Fatalf("cron jobs = %d, %v", len(jobs), err)
	}
	if jobs[0].StoreID != "store-1" || string(jobs[0].Payload) != `{"msg":"tick"}` {
		t.Errorf("materialized job = %+v", jobs[0])
	}

	tick(t, eng)
	got, _ := eng.GetCron(ctx, e.ID)
	if got.RunCount != 1 || got.SuccessCount != 1 {
		t.Errorf("counters run=%d success=%d, want 1/1", got.RunCount, got.SuccessCount)
	}
}

func TestEngine_CronSameSecondTicksFireOnce(t *testing.T) {
	eng, _ := newEngine(t, nil)
	ctx := context.Background()

	e, err := eng.CreateCron(ctx, engine.CronSpec{Name: "report", Expression: "*/5 * * * *", JobType: "report"})
	if err != nil {
		t.Fatalf("CreateCron: %v", err)
	}
	makeDue(t, eng, e.ID)

	var fired atomic.Int32
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, _ := eng.Scheduler().Tick(ctx)
			fired.Add(int32(n))
		}()
	}
	wg.Wait()

	if fired.Load() != 1 {
		t.Errorf("fired %d jobs, want 1", fired.Load())
	}
}

// tickOnRead runs hook once, right after the next GetCron read, standing
// in for a scheduler tick that lands between an edit's read and write.
type tickOnRead struct {
	*memory.Store

	mu   sync.Mutex
	hook func()
}

func (s *tickOnRead) arm(hook func()) {
	s.mu.Lock()
	s.hook = hook
	s.mu.Unlock()
}

func (s *tickOnRead) GetCron(ctx context.Context, cronID id.CronID) (*cron.Entry, error) {
	e, err := s.Store.GetCron(ctx, cronID)
	s.mu.Lock()
	hook := s.hook
	s.hook = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return e, err
}

func TestEngine_CronToggleRacingTickFiresOnce(t *testing.T) {
	s := &tickOnRead{Store: memory.New()}
	d, err := dispatch.New(dispatch.WithStore(s), dispatch.WithLogger(discard))
	if err != nil {
		t.Fatalf("dispatch.New: %v", err)
	}
	eng, err := engine.Build(d)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	ctx := context.Background()

	e, err := eng.CreateCron(ctx, engine.CronSpec{Name: "hourly-report", Expression: "@hourly", JobType: "report"})
	if err != nil {
		t.Fatalf("CreateCron: %v", err)
	}
	makeDue(t, eng, e.ID)

	var fired int
	s.arm(func() { fired += cronTick(t, eng) })
	paused, err := eng.PauseCron(ctx, e.ID)
	if err != nil {
		t.Fatalf("PauseCron: %v", err)
	}
	if fired != 1 {
		t.Fatalf("tick during pause fired %d jobs, want 1", fired)
	}
	if !paused.IsPaused || paused.NextRunAt == nil || !paused.NextRunAt.After(time.Now()) {
		t.Fatalf("paused = paused %v next %v, want the advanced schedule kept", paused.IsPaused, paused.NextRunAt)
	}

	if _, err := eng.ResumeCron(ctx, e.ID); err != nil {
		t.Fatalf("ResumeCron: %v", err)
	}
	if n := cronTick(t, eng); n != 0 {
		t.Errorf("tick after resume fired %d jobs, want 0", n)
	}

	jobs, err := eng.ListJobs(ctx, job.ListOpts{CronID: e.ID})
	if err != nil || len(jobs) != 1 {
		t.Fatalf("cron jobs = %d, %v, want 1", len(jobs), err)
	}
	got, _ := eng.GetCron(ctx, e.ID)
	if got.RunCount != 1 || got.IsPaused {
		t.Errorf("cron = run %d paused %v", got.RunCount, got.IsPaused)
	}
}

func TestEngine_CronAdmin(t *testing.T) {
	eng, _ := newEngine(t, nil)
	ctx := context.Background()

	if _, err := eng.CreateCron(ctx, engine.CronSpec{Name: "bad", Expression: "every tuesday", JobType: "x"}); !errors.Is(err, dispatch.ErrInvalidSchedule) {
		t.Errorf("invalid expression err = %v", err)
	}
	if _, err := eng.CreateCron(ctx, engine.CronSpec{Expression: "@daily", JobType: "x"}); !errors.Is(err, dispatch.ErrEmptyCronName) {
		t.Errorf("missing name err = %v", err)
	}

	e, err := eng.CreateCron(ctx, engine.CronSpec{Name: "credits", Expression: "@daily", JobType: "billing:credits"})
	if err != nil {
		t.Fatalf("CreateCron: %v", err)
	}
	if !e.IsActive || e.Priority != job.PriorityNormal || e.NextRunAt == nil || !e.NextRunAt.After(time.Now()) {
		t.Errorf("created = %+v", e)
	}
	if _, err := eng.CreateCron(ctx, engine.CronSpec{Name: "credits", Expression: "@daily", JobType: "y"}); !errors.Is(err, dispatch.ErrDuplicateCron) {
		t.Errorf("duplicate err = %v", err)
	}

	expr := "*/10 * * * *"
	updated, err := eng.UpdateCron(ctx, e.ID, engine.CronPatch{Expression: &expr})
	if err != nil {
		t.Fatalf("UpdateCron: %v", err)
	}
	if updated.Expression != expr || time.Until(*updated.NextRunAt) > 10*time.Minute {
		t.Errorf("updated = %+v", updated)
	}
	bad := "61 * * * *"
	if _, err := eng.UpdateCron(ctx, e.ID, engine.CronPatch{Expression: &bad}); !errors.Is(err, dispatch.ErrInvalidSchedule) {
		t.Errorf("bad update err = %v", err)
	}

	off, err := eng.DeactivateCron(ctx, e.ID)
	if err != nil || off.State() != cron.StateInactive {
		t.Fatalf("DeactivateCron = %+v, %v", off, err)
	}
	on, err := eng.ActivateCron(ctx, e.ID)
	if err != nil || on.State() != cron.StateActive {
		t.Fatalf("ActivateCron = %+v, %v", on, err)
	}

	list, err := eng.ListCrons(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListCrons = %d, %v", len(list), err)
	}
	if err := eng.DeleteCron(ctx, e.ID); err != nil {
		t.Fatalf("DeleteCron: %v", err)
	}
	if _, err := eng.GetCron(ctx, e.ID); !errors.Is(err, dispatch.ErrCronNotFound) {
		t.Errorf("GetCron after delete err = %v", err)
	}
	if _, err := eng.PauseCron(ctx, e.ID); !errors.Is(err, dispatch.ErrCronNotFound) {
		t.Errorf("PauseCron after delete err = %v", err)
	}
}

func TestEngine_ListExecutionsPaginates(t *testing.T) {
	eng, _ := newEngine(t, nil)
	registerEcho(eng)
	ctx := context.Background()

	e, _ := eng.CreateCron(ctx, engine.CronSpec{Name: "paged", Expression: "@hourly", JobType: "echo"})
	for range 3 {
		makeDue(t, eng, e.ID)
		cronTick(t, eng)
	}

	page, err := eng.ListExecutions(ctx, execution.ListOpts{CronID: e.ID, Limit: 2})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if page.Total != 3 || len(page.Records) != 2 || page.Limit != 2 {
		t.Errorf("page = total %d len %d limit %d", page.Total, len(page.Records), page.Limit)
	}
	page, _ = eng.ListExecutions(ctx, execution.ListOpts{CronID: e.ID, Limit: 2, Offset: 2})
	if len(page.Records) != 1 || page.Records[0].Status != execution.StatusMaterialized {
		t.Errorf("second page = %+v", page.Records)
	}
}

func TestEngine_Maintenance(t *testing.T) {
	eng, s := newEngine(t, nil)
	ctx := context.Background()

	if err := eng.RegisterMaintenance(ctx, "@daily", time.Nanosecond); err != nil {
		t.Fatalf("RegisterMaintenance: %v", err)
	}
	if err := eng.RegisterMaintenance(ctx, "@daily", time.Nanosecond); err != nil {
		t.Fatalf("second RegisterMaintenance must be idempotent: %v", err)
	}
	c, err := eng.GetCronByName(ctx, engine.CleanupCronName)
	if err != nil {
		t.Fatalf("cleanup cron missing: %v", err)
	}
	if c.Priority != job.PriorityLow || c.JobType != engine.CleanupJobType {
		t.Errorf("cleanup cron = %+v", c)
	}

	old, _ := eng.Submit(ctx, "gone", nil)
	if _, err := eng.Cancel(ctx, old.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	makeDue(t, eng, c.ID)
	if n := cronTick(t, eng); n != 1 {
		t.Fatalf("cleanup cron fired %d", n)
	}
	tick(t, eng)

	if _, err := s.GetJob(ctx, old.ID); !errors.Is(err, dispatch.ErrJobNotFound) {
		t.Errorf("cancelled job should be purged, err = %v", err)
	}
	jobs, _ := eng.ListJobs(ctx, job.ListOpts{Type: engine.CleanupJobType})
	if len(jobs) != 1 || jobs[0].Status != job.StatusCompleted {
		t.Fatalf("cleanup job = %+v", jobs)
	}
	var res engine.CleanupResult
	if err := json.Unmarshal(jobs[0].Result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.JobsPurged != 1 || res.ExecutionsPurged < 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestEngine_JobCounts(t *testing.T) {
	eng, _ := newEngine(t, nil)
	registerEcho(eng)
	ctx := context.Background()

	_, _ = eng.Submit(ctx, "echo", nil, job.WithStoreID("a"))
	_, _ = eng.Submit(ctx, "echo", nil, job.WithStoreID("a"))
	_, _ = eng.Submit(ctx, "echo", nil, job.WithStoreID("b"))
	tick(t, eng)

	all, err := eng.JobCounts(ctx, "")
	if err != nil {
		t.Fatalf("JobCounts: %v", err)
	}
	if all[job.StatusCompleted] != 3 || all[job.StatusPending] != 0 {
		t.Errorf("counts = %v", all)
	}
	scoped, _ := eng.JobCounts(ctx, "a")
	if scoped[job.StatusCompleted] != 2 {
		t.Errorf("store a counts = %v", scoped)
	}
}
