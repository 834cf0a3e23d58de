package bus

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Message is one stream entry pending processing. It satisfies the relay
// engine's Message contract: Ack and DeadLetter report back to the stream's
// consumer group.
type Message struct {
	id      string
	data    []byte
	attrs   map[string]string
	publish time.Time

	c *Consumer
}

func (m *Message) ID() string                    { return m.id }
func (m *Message) Data() []byte                  { return m.data }
func (m *Message) Attributes() map[string]string { return m.attrs }

// PublishTime is the bus-assigned publication timestamp: the millisecond
// prefix of the stream entry id. Entry ids are monotonic per stream, which
// is what the delivery cache's ordering check relies on.
func (m *Message) PublishTime() time.Time { return m.publish }

func (m *Message) Ack(ctx context.Context) error { return m.c.ack(ctx, m.id) }

// DeadLetter copies the entry onto the dead-letter stream and acknowledges
// the original so it is never redelivered.
func (m *Message) DeadLetter(ctx context.Context) error { return m.c.deadLetter(ctx, m) }

// entryPublishTime extracts the millisecond timestamp from a stream entry
// id of the form "<ms>-<seq>".
func entryPublishTime(id string) time.Time {
	dash := strings.IndexByte(id, '-')
	if dash <= 0 {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(id[:dash], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
