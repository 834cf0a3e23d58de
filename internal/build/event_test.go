package build

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeFullPayload(t *testing.T) {
	t.Parallel()
	raw := []byte(`{
		"id": "b-123",
		"projectId": "acme-prod",
		"status": "SUCCESS",
		"startTime": "2024-05-01T10:00:00Z",
		"finishTime": "2024-05-01T10:05:30Z",
		"logUrl": "https://console.example.com/builds/b-123",
		"substitutions": {"TRIGGER_NAME": "deploy-frontend"},
		"results": {"images": [{"name": "gcr.io/acme/app:1"}, {"name": ""}]}
	}`)
	pub := time.UnixMilli(1714557930000)

	ev, err := Decode(raw, map[string]string{AttrSubjectID: "b-123"}, pub)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if ev.SubjectID != "b-123" || ev.ProjectID != "acme-prod" {
		t.Fatalf("unexpected ids: %q %q", ev.SubjectID, ev.ProjectID)
	}
	if ev.Status != StatusSuccess || ev.RawStatus != "SUCCESS" {
		t.Fatalf("status = %v (%q)", ev.Status, ev.RawStatus)
	}
	if !ev.PublishTime.Equal(pub) {
		t.Fatalf("PublishTime = %v, want %v", ev.PublishTime, pub)
	}
	if ev.StartTime.IsZero() || ev.FinishTime.IsZero() {
		t.Fatalf("timestamps not parsed: %v %v", ev.StartTime, ev.FinishTime)
	}
	if ev.TriggerName != "deploy-frontend" {
		t.Fatalf("TriggerName = %q", ev.TriggerName)
	}
	if len(ev.Images) != 1 || ev.Images[0] != "gcr.io/acme/app:1" {
		t.Fatalf("Images = %v", ev.Images)
	}
}

func TestDecodeSubjectFallsBackToPayloadID(t *testing.T) {
	t.Parallel()
	raw := []byte(`{"id":"b-9","projectId":"p","status":"QUEUED"}`)

	ev, err := Decode(raw, nil, time.Now())
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if ev.SubjectID != "b-9" {
		t.Fatalf("SubjectID = %q, want b-9", ev.SubjectID)
	}
}

func TestDecodeFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		raw   string
		attrs map[string]string
		want  error
	}{
		{name: "malformed json", raw: `{"id":`},
		{name: "no subject", raw: `{"projectId":"p","status":"QUEUED"}`, want: ErrNoSubject},
		{name: "no project", raw: `{"id":"b-1","status":"QUEUED"}`, want: ErrNoProject},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw), tt.attrs, time.Now())
			if err == nil {
				t.Fatal("expected decode error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeUnknownStatusIsNotAnError(t *testing.T) {
	t.Parallel()
	raw := []byte(`{"id":"b-1","projectId":"p","status":"SOMETHING_NEW"}`)

	ev, err := Decode(raw, nil, time.Now())
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if ev.Status != StatusUnknown {
		t.Fatalf("Status = %v, want StatusUnknown", ev.Status)
	}
	if ev.RawStatus != "SOMETHING_NEW" {
		t.Fatalf("RawStatus = %q", ev.RawStatus)
	}
}

func TestDecodeBadTimestampsTreatedAsAbsent(t *testing.T) {
	t.Parallel()
	raw := []byte(`{"id":"b-1","projectId":"p","status":"WORKING","startTime":"yesterday"}`)

	ev, err := Decode(raw, nil, time.Now())
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if !ev.StartTime.IsZero() {
		t.Fatalf("StartTime = %v, want zero", ev.StartTime)
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want Status
	}{
		{"PENDING", StatusPending},
		{"queued", StatusQueued},
		{" WORKING ", StatusWorking},
		{"SUCCESS", StatusSuccess},
		{"FAILURE", StatusFailure},
		{"INTERNAL_ERROR", StatusInternalError},
		{"TIMEOUT", StatusTimeout},
		{"CANCELLED", StatusCancelled},
		{"EXPIRED", StatusExpired},
		{"STATUS_UNKNOWN", StatusUnknown},
		{"", StatusUnknown},
	}
	for _, tt := range tests {
		if got := ParseStatus(tt.raw); got != tt.want {
			t.Fatalf("ParseStatus(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	t.Parallel()
	terminal := []Status{StatusSuccess, StatusFailure, StatusInternalError, StatusTimeout, StatusCancelled, StatusExpired}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%v should be terminal", s)
		}
	}
	for _, s := range []Status{StatusUnknown, StatusPending, StatusQueued, StatusWorking} {
		if s.Terminal() {
			t.Fatalf("%v should not be terminal", s)
		}
	}
}
