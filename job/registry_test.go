package job_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/assaka/daino-sub010/job"
)

type importPayload struct {
	StoreID string `json:"store_id"`
	Rows    int    `json:"rows"`
}

type importResult struct {
	Imported int `json:"imported"`
}

func TestRegistry_RegisterDefinition(t *testing.T) {
	r := job.NewRegistry()

	var got importPayload
	job.RegisterDefinition(r, job.NewDefinition("import:products",
		func(_ context.Context, p importPayload) (importResult, error) {
			got = p
			return importResult{Imported: p.Rows}, nil
		},
	))

	h, ok := r.Get("import:products")
	if !ok {
		t.Fatal("expected handler to be registered")
	}

	def := job.NewDefinition("import:products", func(_ context.Context, p importPayload) (importResult, error) {
		return importResult{}, nil
	})
	payload, err := def.Encode(importPayload{StoreID: "store-1", Rows: 12})
	if err != nil {
		t.Fatal(err)
	}
	out, err := h(context.Background(), &job.Job{Type: "import:products", Payload: payload})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.StoreID != "store-1" || got.Rows != 12 {
		t.Errorf("payload = %+v", got)
	}
	if string(out) != `{"imported":12}` {
		t.Errorf("result = %s, want {\"imported\":12}", out)
	}
}

func TestRegistry_RawHandler(t *testing.T) {
	r := job.NewRegistry()
	r.Register("echo", func(_ context.Context, j *job.Job) ([]byte, error) {
		return j.Payload, nil
	}, job.WithPriority(job.PriorityHigh))

	h, ok := r.Get("echo")
	if !ok {
		t.Fatal("expected handler")
	}
	out, err := h(context.Background(), &job.Job{Payload: []byte(`{"msg":"hi"}`)})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"msg":"hi"}` {
		t.Errorf("result = %s", out)
	}
	if p := r.Options("echo").Priority; p != job.PriorityHigh {
		t.Errorf("registered priority = %q, want high", p)
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := job.NewRegistry()
	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected no handler for unregistered type")
	}
	got, want := r.Options("missing"), job.DefaultOptions()
	if got.Priority != want.Priority || got.MaxRetries != want.MaxRetries || got.Timeout != want.Timeout {
		t.Errorf("Options(missing) = %+v, want defaults", got)
	}
}

func TestRegistry_Types(t *testing.T) {
	r := job.NewRegistry()
	noop := func(_ context.Context, _ *job.Job) ([]byte, error) { return nil, nil }
	r.Register("cache:cleanup", noop)
	r.Register("billing:credits", noop)
	r.Register("email:notify", noop)

	got := r.Types()
	want := []string{"billing:credits", "cache:cleanup", "email:notify"}
	if len(got) != len(want) {
		t.Fatalf("Types() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Types()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRegistry_InvalidPayloadIsPermanent(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition("typed",
		func(_ context.Context, _ importPayload) (struct{}, error) {
			t.Fatal("handler should not run with invalid JSON")
			return struct{}{}, nil
		},
	))

	h, _ := r.Get("typed")
	_, err := h(context.Background(), &job.Job{Payload: []byte(`{broken`)})
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !job.IsPermanent(err) {
		t.Errorf("decode error should be permanent: %v", err)
	}
}

func TestRegistry_HandlerErrorPassesThrough(t *testing.T) {
	r := job.NewRegistry()
	want := errors.New("upstream timeout")
	job.RegisterDefinition(r, job.NewDefinition("flaky",
		func(_ context.Context, _ struct{}) (struct{}, error) { return struct{}{}, want },
	))

	h, _ := r.Get("flaky")
	_, err := h(context.Background(), &job.Job{})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	if job.IsPermanent(err) {
		t.Error("plain handler error must not be permanent")
	}
}

func TestDefinitionOptions(t *testing.T) {
	def := job.NewDefinition("translation:bulk",
		func(_ context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil },
		job.WithMaxRetries(7),
		job.WithPriority(job.PriorityLow),
		job.WithTimeout(time.Hour),
	)
	if def.Opts.MaxRetries != 7 || def.Opts.Priority != job.PriorityLow || def.Opts.Timeout != time.Hour {
		t.Errorf("Opts = %+v", def.Opts)
	}

	o := job.DefaultOptions()
	job.WithMaxRetries(-2)(&o)
	if o.MaxRetries != 0 {
		t.Errorf("negative retries should clamp to 0, got %d", o.MaxRetries)
	}
}

func TestPermanent(t *testing.T) {
	if job.Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}

	base := errors.New("sku missing")
	err := fmt.Errorf("import row 4: %w", job.Permanent(base))
	if !job.IsPermanent(err) {
		t.Error("wrapped permanent error not detected")
	}
	if !errors.Is(err, base) {
		t.Error("permanent error should unwrap to its cause")
	}
	if err.Error() != "import row 4: sku missing" {
		t.Errorf("message = %q", err.Error())
	}
}
