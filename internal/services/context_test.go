package services_test

import (
	"context"
	"testing"

	"streamgate/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithUserID(ctx, 7)
	ctx = services.WithJobID(ctx, 42)
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.UserIDFromContext(ctx); !ok || id != 7 {
		t.Fatalf("unexpected user id: %v %v", id, ok)
	}
	if id, ok := services.JobIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankRequestIDPreservesContext(t *testing.T) {
	ctx := services.WithRequestID(context.Background(), "")
	if _, ok := services.RequestIDFromContext(ctx); ok {
		t.Fatal("expected no request id value")
	}
	if _, ok := services.UserIDFromContext(ctx); ok {
		t.Fatal("expected no user id value")
	}
}
