package render

import (
	"strings"
	"testing"
	"time"

	"buildrelay/internal/actions"
	"buildrelay/internal/build"
)

func event(status build.Status) *build.Event {
	return &build.Event{
		SubjectID:   "b-42",
		ProjectID:   "acme",
		Status:      status,
		RawStatus:   status.String(),
		PublishTime: time.Now(),
	}
}

func kinds(specs []actions.Spec) []actions.Kind {
	out := make([]actions.Kind, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.Kind)
	}
	return out
}

func TestRenderCategoriesAndActions(t *testing.T) {
	t.Parallel()
	r := New(actions.Factory{})

	tests := []struct {
		name    string
		status  build.Status
		cat     Category
		actions []actions.Kind
	}{
		{name: "pending", status: build.StatusPending, cat: CategoryAwaitingDecision, actions: []actions.Kind{actions.KindApprove, actions.KindReject}},
		{name: "queued", status: build.StatusQueued, cat: CategoryActive, actions: []actions.Kind{actions.KindStop}},
		{name: "working", status: build.StatusWorking, cat: CategoryActive, actions: []actions.Kind{actions.KindStop}},
		{name: "success", status: build.StatusSuccess, cat: CategoryTerminal, actions: []actions.Kind{actions.KindRetry}},
		{name: "failure", status: build.StatusFailure, cat: CategoryTerminal, actions: []actions.Kind{actions.KindRetry}},
		{name: "timeout", status: build.StatusTimeout, cat: CategoryTerminal, actions: []actions.Kind{actions.KindRetry}},
		{name: "unknown", status: build.StatusUnknown, cat: CategoryUnknown, actions: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			body, cat := r.Render(event(tt.status))
			if cat != tt.cat {
				t.Fatalf("category = %s, want %s", cat, tt.cat)
			}
			got := kinds(body.Actions)
			if len(got) != len(tt.actions) {
				t.Fatalf("actions = %v, want %v", got, tt.actions)
			}
			for i := range got {
				if got[i] != tt.actions[i] {
					t.Fatalf("actions = %v, want %v", got, tt.actions)
				}
			}
			if body.Title == "" {
				t.Fatal("empty title")
			}
		})
	}
}

func TestRenderDescription(t *testing.T) {
	t.Parallel()
	r := New(actions.Factory{})

	ev := event(build.StatusSuccess)
	ev.TriggerName = "deploy-frontend-prod"
	ev.LogURL = "https://logs.example.com/b-42"
	ev.Images = []string{"gcr.io/acme/app:1"}
	ev.StartTime = time.Unix(1714557600, 0)
	ev.FinishTime = ev.StartTime.Add(95 * time.Second)

	body, _ := r.Render(ev)

	for _, want := range []string{
		"**deploy frontend prod**",
		"b-42",
		"[(View Logs)](https://logs.example.com/b-42)",
		"**Built Images:**",
		"- gcr.io/acme/app:1",
		"<t:1714557600:T>",
		"took 1 minute, 35 seconds",
	} {
		if !strings.Contains(body.Description, want) {
			t.Fatalf("description missing %q:\n%s", want, body.Description)
		}
	}
}

func TestRenderDescriptionDefaults(t *testing.T) {
	t.Parallel()
	r := New(actions.Factory{})

	body, _ := r.Render(event(build.StatusQueued))
	if !strings.Contains(body.Description, "**Unknown Project**") {
		t.Fatalf("missing trigger fallback:\n%s", body.Description)
	}
	if strings.Contains(body.Description, "View Logs") {
		t.Fatalf("unexpected log link:\n%s", body.Description)
	}
	if strings.Contains(body.Description, "Started at") {
		t.Fatalf("unexpected start time:\n%s", body.Description)
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 seconds"},
		{-5 * time.Second, "0 seconds"},
		{time.Second, "1 second"},
		{45 * time.Second, "45 seconds"},
		{time.Minute, "1 minute"},
		{95 * time.Second, "1 minute, 35 seconds"},
		{time.Hour, "1 hour"},
		{3*time.Hour + 2*time.Minute + time.Second, "3 hours, 2 minutes, 1 second"},
		{2 * time.Hour, "2 hours"},
		{61 * time.Minute, "1 hour, 1 minute"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
