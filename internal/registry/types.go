package registry

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("registry: endpoint not found")
	ErrChannelTaken = errors.New("registry: channel already has an endpoint")
)

// Endpoint is one registered outbound delivery target.
// ID and Token together form the delivery credential.
type Endpoint struct {
	ID        string
	Token     string
	ChannelID string
	Active    bool
	CreatedAt time.Time
}

// Config configures the registry store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// AuditEntry records one dispatch outcome.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At         time.Time
	EndpointID string
	SubjectID  string
	Op         string // "create", "edit" or "skip"
	OK         bool
	Error      string
	TookMS     int64
}
