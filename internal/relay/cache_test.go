package relay

import (
	"testing"
	"time"
)

func TestCacheKeyInjective(t *testing.T) {
	t.Parallel()
	// Pairs whose naive concatenation would collide.
	a := Key{EndpointID: "ep:1", SubjectID: "b"}
	b := Key{EndpointID: "ep", SubjectID: "1:b"}
	if a.cacheKey() == b.cacheKey() {
		t.Fatalf("cache keys collide: %q", a.cacheKey())
	}

	c := Key{EndpointID: `ep"x`, SubjectID: "b"}
	d := Key{EndpointID: "ep", SubjectID: `x"b`}
	if c.cacheKey() == d.cacheKey() {
		t.Fatalf("cache keys collide: %q", c.cacheKey())
	}
}

func TestCacheShouldDeliver(t *testing.T) {
	t.Parallel()
	c := NewCache(time.Minute, time.Minute)
	k := Key{EndpointID: "ep", SubjectID: "b"}
	t0 := time.UnixMilli(1000)

	if !c.ShouldDeliver(k, t0) {
		t.Fatal("empty cache must deliver")
	}

	c.Write(k, t0, "m-1")

	if c.ShouldDeliver(k, t0) {
		t.Fatal("same publish time must be suppressed")
	}
	if c.ShouldDeliver(k, t0.Add(-time.Millisecond)) {
		t.Fatal("older publish time must be suppressed")
	}
	if !c.ShouldDeliver(k, t0.Add(time.Millisecond)) {
		t.Fatal("newer publish time must deliver")
	}

	rec, ok := c.Lookup(k)
	if !ok || rec.MessageID != "m-1" || !rec.LastEventTime.Equal(t0) {
		t.Fatalf("Lookup = %+v (ok=%v)", rec, ok)
	}
}

func TestCacheExpiryReadsAsNeverDelivered(t *testing.T) {
	t.Parallel()
	c := NewCache(25*time.Millisecond, time.Minute)
	k := Key{EndpointID: "ep", SubjectID: "b"}
	t0 := time.UnixMilli(1000)

	c.Write(k, t0, "m-1")
	time.Sleep(60 * time.Millisecond)

	if _, ok := c.Lookup(k); ok {
		t.Fatal("record should have expired")
	}
	if !c.ShouldDeliver(k, t0) {
		t.Fatal("expired record must read as never delivered")
	}
}
