// Package relay contains the event-ordering and delivery-dedup engine.
//
// A single worker drains the inbound queue, so only one event is ever
// mid-pipeline at a time. That single-flight design is what keeps the
// per-(endpoint, subject) ordering invariant lock-free: the delivery
// cache is only ever touched from the worker goroutine.
package relay

import (
	"context"
	"errors"
	"time"

	"buildrelay/internal/registry"
	"buildrelay/internal/render"
)

var (
	ErrQueueFull = errors.New("relay: queue full")
	ErrStopped   = errors.New("relay: engine stopped")
)

// Message is one inbound bus message. The engine acknowledges it once the
// pipeline has run to completion; a message that cannot be decoded stays
// unacknowledged until the poison cap moves it to the dead-letter stream.
type Message interface {
	ID() string
	Data() []byte
	Attributes() map[string]string
	PublishTime() time.Time

	Ack(ctx context.Context) error
	// DeadLetter moves the message to the poison stream and acknowledges it.
	DeadLetter(ctx context.Context) error
}

// Registry lists the endpoints participating in dispatch.
type Registry interface {
	ListActive(ctx context.Context) ([]registry.Endpoint, error)
}

// Messenger delivers one rendered notification to one endpoint.
type Messenger interface {
	// Create posts a new notification and returns its recipient-assigned id.
	Create(ctx context.Context, ep registry.Endpoint, body render.Body) (string, error)
	// Edit replaces the body of a previously created notification.
	Edit(ctx context.Context, ep registry.Endpoint, messageID string, body render.Body) error
}

// Auditor records dispatch outcomes. Optional; a nil Auditor disables auditing.
type Auditor interface {
	AppendAudit(ctx context.Context, e registry.AuditEntry) error
}

// Config tunes the engine.
//
// All zero values fall back to defaults on Start.
type Config struct {
	QueueSize int

	// CacheTTL bounds how long a delivery record is remembered after its
	// last write. After expiry a later event causes a fresh create; that
	// duplicate is an accepted trade-off, not a bug.
	CacheTTL      time.Duration
	SweepInterval time.Duration

	DispatchTimeout time.Duration
	RatePerSec      int

	// DecodeRetryMax is the poison cap: after this many failed decodes of
	// the same message it is dead-lettered instead of left for redelivery.
	DecodeRetryMax int
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Minute
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 10 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.DecodeRetryMax <= 0 {
		c.DecodeRetryMax = 5
	}
	return c
}
