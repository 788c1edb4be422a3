package scope_test

import (
	"context"
	"testing"

	"github.com/assaka/daino-sub010/scope"
)

func TestCaptureRestore(t *testing.T) {
	ctx := context.Background()
	if got := scope.Capture(ctx); got != "" {
		t.Fatalf("empty context captured %q", got)
	}

	ctx = scope.Restore(ctx, "store-42")
	if got := scope.Capture(ctx); got != "store-42" {
		t.Errorf("Capture = %q, want store-42", got)
	}

	if scope.WithStoreID(ctx, "") != ctx {
		t.Error("empty store ID should leave the context unchanged")
	}
}
