// Package build decodes raw bus messages into typed build events.
//
// Decoding is pure: no I/O, no clock reads. The caller supplies the
// envelope publish time and the out-of-band message attributes.
package build

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrNoSubject = errors.New("build: message has no build id")
	ErrNoProject = errors.New("build: message has no project id")
)

// Event is one decoded build-status change. Immutable after Decode;
// one Event is created per inbound message and discarded after processing.
type Event struct {
	// SubjectID identifies the build run being tracked.
	SubjectID string
	ProjectID string

	Status Status
	// RawStatus keeps the wire string for operator logs when Status
	// is StatusUnknown.
	RawStatus string

	// PublishTime is assigned by the bus envelope, not the payload.
	// It orders deliveries per (endpoint, subject).
	PublishTime time.Time

	// StartTime/FinishTime are zero until the build has started/finished.
	StartTime  time.Time
	FinishTime time.Time

	TriggerName string
	LogURL      string
	Images      []string
}

// AttrSubjectID is the message attribute carrying the build id
// out-of-band from the payload.
const AttrSubjectID = "buildId"

type payload struct {
	ID            string            `json:"id"`
	ProjectID     string            `json:"projectId"`
	Status        string            `json:"status"`
	StartTime     string            `json:"startTime"`
	FinishTime    string            `json:"finishTime"`
	LogURL        string            `json:"logUrl"`
	Substitutions map[string]string `json:"substitutions"`
	Results       struct {
		Images []struct {
			Name string `json:"name"`
		} `json:"images"`
	} `json:"results"`
}

// Decode parses a raw bus payload into an Event.
//
// A decode failure means the payload could not be interpreted at all:
// malformed JSON or a missing subject/project identifier. An unknown
// status string is NOT a failure; it decodes to StatusUnknown.
func Decode(raw []byte, attrs map[string]string, publishTime time.Time) (*Event, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("build: decode payload: %w", err)
	}

	subject := attrs[AttrSubjectID]
	if subject == "" {
		subject = p.ID
	}
	if subject == "" {
		return nil, ErrNoSubject
	}
	if p.ProjectID == "" {
		return nil, ErrNoProject
	}

	ev := &Event{
		SubjectID:   subject,
		ProjectID:   p.ProjectID,
		Status:      ParseStatus(p.Status),
		RawStatus:   p.Status,
		PublishTime: publishTime,
		TriggerName: p.Substitutions["TRIGGER_NAME"],
		LogURL:      p.LogURL,
	}

	// Timestamps are optional; a value we cannot parse is treated as absent.
	ev.StartTime = parseTime(p.StartTime)
	ev.FinishTime = parseTime(p.FinishTime)

	for _, img := range p.Results.Images {
		if img.Name != "" {
			ev.Images = append(ev.Images, img.Name)
		}
	}

	return ev, nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
