package relay

import (
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Key identifies one delivery stream: the pair of endpoint and subject.
// Structural equality on the struct avoids the delimiter-collision risk
// of concatenated string keys.
type Key struct {
	EndpointID string
	SubjectID  string
}

// cacheKey encodes the pair for the string-keyed backing cache.
// Quoting both fields keeps the encoding injective.
func (k Key) cacheKey() string {
	return strconv.Quote(k.EndpointID) + strconv.Quote(k.SubjectID)
}

// Record is the last delivered notification for a (endpoint, subject) pair.
//
// Invariant: LastEventTime is monotonically non-decreasing across writes
// for a fixed key. An event at or before LastEventTime must never produce
// a create or edit.
type Record struct {
	LastEventTime time.Time
	MessageID     string
}

// Cache is the time-bounded delivery record store. Entries expire once
// their TTL elapses since the last write; an expired entry reads as
// "never delivered".
type Cache struct {
	c *gocache.Cache
}

// NewCache builds a cache with the given record TTL and eager sweep interval.
func NewCache(ttl, sweep time.Duration) *Cache {
	return &Cache{c: gocache.New(ttl, sweep)}
}

// Lookup returns the live record for the pair, if any.
func (c *Cache) Lookup(k Key) (Record, bool) {
	v, ok := c.c.Get(k.cacheKey())
	if !ok {
		return Record{}, false
	}
	rec, ok := v.(Record)
	return rec, ok
}

// ShouldDeliver reports whether an event published at t may produce a
// create or edit for the pair: true iff no record exists or t is strictly
// newer than the recorded event time.
func (c *Cache) ShouldDeliver(k Key, t time.Time) bool {
	rec, ok := c.Lookup(k)
	if !ok {
		return true
	}
	return t.After(rec.LastEventTime)
}

// Write stores the delivered notification identity and resets the TTL.
func (c *Cache) Write(k Key, eventTime time.Time, messageID string) {
	c.c.SetDefault(k.cacheKey(), Record{LastEventTime: eventTime, MessageID: messageID})
}

// Len reports the number of live records (for maintenance logging).
func (c *Cache) Len() int { return c.c.ItemCount() }
