package actions

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCustomIDRoundTrip(t *testing.T) {
	t.Parallel()
	for _, kind := range []Kind{KindApprove, KindReject, KindStop, KindRetry} {
		ref := Ref{ProjectID: "acme-prod", BuildID: "b-42"}
		id := EncodeCustomID(kind, ref)

		gotKind, gotRef, err := DecodeCustomID(id)
		if err != nil {
			t.Fatalf("DecodeCustomID(%q) error: %v", id, err)
		}
		if gotKind != kind || gotRef != ref {
			t.Fatalf("round trip %q -> %v %v", id, gotKind, gotRef)
		}
	}
}

func TestDecodeCustomIDRejectsMalformed(t *testing.T) {
	t.Parallel()
	bad := []string{
		"",
		"build",
		"build:approve:p",
		"build:approve:p:b:extra",
		"other:approve:p:b",
		"build:explode:p:b",
		"build:approve::b",
		"build:approve:p:",
	}
	for _, id := range bad {
		if _, _, err := DecodeCustomID(id); !errors.Is(err, ErrBadCustomID) {
			t.Fatalf("DecodeCustomID(%q) = %v, want ErrBadCustomID", id, err)
		}
	}
}

func TestFactoryCreate(t *testing.T) {
	t.Parallel()
	f := Factory{}
	ref := Ref{ProjectID: "p", BuildID: "b"}

	approve := f.Create(KindApprove, ref)
	if approve.Style != StyleSuccess {
		t.Fatalf("approve style = %d", approve.Style)
	}
	if approve.CustomID != "build:approve:p:b" {
		t.Fatalf("approve custom id = %q", approve.CustomID)
	}

	stop := f.Create(KindStop, ref)
	if stop.Style != StyleDanger || stop.Label != "Stop" {
		t.Fatalf("stop spec = %+v", stop)
	}

	retry := f.Create(KindRetry, ref)
	if retry.Style != StyleSecondary || retry.Label != "Retry" {
		t.Fatalf("retry spec = %+v", retry)
	}
}

type fakeController struct {
	calls []string
	err   error
}

func (f *fakeController) record(op string, ref Ref) error {
	f.calls = append(f.calls, op+":"+ref.BuildID)
	return f.err
}

func (f *fakeController) Approve(_ context.Context, ref Ref) error { return f.record("approve", ref) }
func (f *fakeController) Reject(_ context.Context, ref Ref) error  { return f.record("reject", ref) }
func (f *fakeController) Cancel(_ context.Context, ref Ref) error  { return f.record("cancel", ref) }
func (f *fakeController) Retry(_ context.Context, ref Ref) error   { return f.record("retry", ref) }

func TestExecuteConfirmations(t *testing.T) {
	t.Parallel()
	ref := Ref{ProjectID: "p", BuildID: "b-7"}

	tests := []struct {
		kind Kind
		call string
		want string
	}{
		{KindApprove, "approve:b-7", "has been approved"},
		{KindReject, "reject:b-7", "has been rejected"},
		{KindStop, "cancel:b-7", "has been cancelled"},
		{KindRetry, "retry:b-7", "is being retried"},
	}

	for _, tt := range tests {
		c := &fakeController{}
		msg, err := Execute(context.Background(), c, tt.kind, ref)
		if err != nil {
			t.Fatalf("Execute(%s) error: %v", tt.kind, err)
		}
		if !strings.Contains(msg, tt.want) || !strings.Contains(msg, "b-7") {
			t.Fatalf("Execute(%s) message = %q", tt.kind, msg)
		}
		if len(c.calls) != 1 || c.calls[0] != tt.call {
			t.Fatalf("Execute(%s) calls = %v", tt.kind, c.calls)
		}
	}
}

func TestExecutePropagatesControllerError(t *testing.T) {
	t.Parallel()
	c := &fakeController{err: errors.New("denied")}
	if _, err := Execute(context.Background(), c, KindApprove, Ref{ProjectID: "p", BuildID: "b"}); err == nil {
		t.Fatal("expected controller error")
	}

	if _, err := Execute(context.Background(), c, Kind("explode"), Ref{}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
