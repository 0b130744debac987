package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesGrpcCodes(t *testing.T) {
	cases := []struct {
		name  string
		code  codes.Code
		check func(*Error) bool
	}{
		{"not found", codes.NotFound, (*Error).IsNotFound},
		{"already exists", codes.AlreadyExists, (*Error).IsConflict},
		{"aborted", codes.Aborted, (*Error).IsConflict},
		{"unavailable", codes.Unavailable, (*Error).IsUnavailable},
		{"resource exhausted", codes.ResourceExhausted, (*Error).IsUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := WrapError("orders.read", status.Error(tc.code, "backend says no"))

			var repoErr *Error
			if !errors.As(wrapped, &repoErr) {
				t.Fatalf("expected *Error, got %T", wrapped)
			}
			if !tc.check(repoErr) {
				t.Fatalf("wrong category for %v: %+v", tc.code, repoErr)
			}
		})
	}
}

func TestWrapErrorConvertsDeadlineAndCancel(t *testing.T) {
	if err := WrapError("orders.read", status.Error(codes.DeadlineExceeded, "too slow")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if err := WrapError("orders.read", status.Error(codes.Canceled, "gone")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("orders.read", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected passthrough context.Canceled, got %v", err)
	}
}

func TestWrapErrorKeepsExistingOp(t *testing.T) {
	inner := WrapError("orders.read", status.Error(codes.NotFound, "missing"))
	rewrapped := WrapError("orders.update", inner)

	var repoErr *Error
	if !errors.As(rewrapped, &repoErr) {
		t.Fatalf("expected *Error, got %T", rewrapped)
	}
	if repoErr.op != "orders.read" {
		t.Fatalf("expected original op preserved, got %q", repoErr.op)
	}
}

func TestWrapErrorNil(t *testing.T) {
	if err := WrapError("orders.read", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
