package types

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	ctx = WithTraceID(ctx, "t1")
	if got, ok := TraceID(ctx); !ok || got != "t1" {
		t.Fatalf("TraceID mismatch: %v %v", got, ok)
	}

	ctx = WithSessionID(ctx, "session")
	if got, ok := SessionID(ctx); !ok || got != "session" {
		t.Fatalf("SessionID mismatch: %v %v", got, ok)
	}

	ctx = WithWorkerID(ctx, "worker-1")
	if got, ok := WorkerID(ctx); !ok || got != "worker-1" {
		t.Fatalf("WorkerID mismatch: %v %v", got, ok)
	}

	ctx = WithOperationID(ctx, "op")
	if got, ok := OperationID(ctx); !ok || got != "op" {
		t.Fatalf("OperationID mismatch: %v %v", got, ok)
	}

	if _, ok := TraceID(context.Background()); ok {
		t.Fatalf("expected missing trace id on empty context")
	}
}
