// Package bus consumes build-status messages from a valkey stream.
//
// Delivery is at-least-once: entries are handed to a consumer group,
// acknowledged only after the relay pipeline completes, and stale pending
// entries are reclaimed periodically so a crashed consumer's backlog is
// redelivered. Duplicate and out-of-order arrivals are expected; the relay
// engine's delivery cache suppresses their visible effects.
package bus

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	valkey "github.com/valkey-io/valkey-go"

	logx "buildrelay/pkg/logx"
)

// payloadField holds the JSON payload inside a stream entry; every other
// field is treated as a message attribute.
const payloadField = "data"

type Config struct {
	Addr     string
	Password string

	Stream   string
	Group    string
	Consumer string

	Block     time.Duration
	BatchSize int

	// ClaimInterval/MinIdle control reclaiming of pending entries that
	// were delivered but never acknowledged.
	ClaimInterval time.Duration
	MinIdle       time.Duration

	DeadLetterStream string
}

func (c Config) withDefaults() Config {
	if c.Stream == "" {
		c.Stream = "cloud-builds"
	}
	if c.Group == "" {
		c.Group = "build-notifications"
	}
	if c.Consumer == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "buildrelay"
		}
		c.Consumer = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
	if c.ClaimInterval <= 0 {
		c.ClaimInterval = 30 * time.Second
	}
	if c.MinIdle <= 0 {
		c.MinIdle = time.Minute
	}
	if c.DeadLetterStream == "" {
		c.DeadLetterStream = c.Stream + ":dead"
	}
	return c
}

// Sink receives decoded messages. Returning an error leaves the entry
// pending; the claim loop will redeliver it later.
type Sink func(m *Message) error

type Consumer struct {
	cfg    Config
	sink   Sink
	log    logx.Logger
	client valkey.Client

	mu        sync.Mutex
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfg Config, sink Sink, log logx.Logger) *Consumer {
	return &Consumer{cfg: cfg.withDefaults(), sink: sink, log: log}
}

// Start connects, ensures the consumer group exists, and launches the
// read and claim loops.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runCancel != nil {
		return nil
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{c.cfg.Addr},
		Password:    c.cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("bus: connect %s: %w", c.cfg.Addr, err)
	}

	err = client.Do(ctx, client.B().XgroupCreate().
		Key(c.cfg.Stream).Group(c.cfg.Group).Id("$").Mkstream().Build()).Error()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		client.Close()
		return fmt.Errorf("bus: create group %s: %w", c.cfg.Group, err)
	}

	c.client = client
	runCtx, cancel := context.WithCancel(context.Background())
	c.runCancel = cancel

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.readLoop(runCtx)
	}()
	go func() {
		defer c.wg.Done()
		c.claimLoop(runCtx)
	}()

	c.log.Info("bus consumer started",
		logx.String("stream", c.cfg.Stream),
		logx.String("group", c.cfg.Group),
		logx.String("consumer", c.cfg.Consumer))
	return nil
}

func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.runCancel
	c.runCancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-done:
	}
	c.client.Close()
	c.log.Info("bus consumer stopped")
	return nil
}

func (c *Consumer) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cmd := c.client.B().Xreadgroup().
			Group(c.cfg.Group, c.cfg.Consumer).
			Count(int64(c.cfg.BatchSize)).
			Block(c.cfg.Block.Milliseconds()).
			Streams().Key(c.cfg.Stream).Id(">").Build()

		res := c.client.Do(ctx, cmd)
		if err := res.Error(); err != nil {
			if valkey.IsValkeyNil(err) {
				continue // block timeout, nothing new
			}
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("stream read failed", logx.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		streams, err := res.AsXRead()
		if err != nil {
			c.log.Warn("unexpected stream reply", logx.Err(err))
			continue
		}
		for _, entry := range streams[c.cfg.Stream] {
			c.deliver(entry.ID, entry.FieldValues)
		}
	}
}

// claimLoop periodically adopts pending entries whose consumer went away
// or never acknowledged them.
func (c *Consumer) claimLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.ClaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cmd := c.client.B().Xautoclaim().
			Key(c.cfg.Stream).Group(c.cfg.Group).Consumer(c.cfg.Consumer).
			MinIdleTime(fmt.Sprintf("%d", c.cfg.MinIdle.Milliseconds())).
			Start("0-0").Count(int64(c.cfg.BatchSize)).Build()

		arr, err := c.client.Do(ctx, cmd).ToArray()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("autoclaim failed", logx.Err(err))
			}
			continue
		}
		if len(arr) < 2 {
			continue
		}
		entries, err := arr[1].AsXRange()
		if err != nil {
			c.log.Warn("unexpected autoclaim reply", logx.Err(err))
			continue
		}
		for _, entry := range entries {
			c.log.Debug("reclaimed pending entry", logx.String("msg", entry.ID))
			c.deliver(entry.ID, entry.FieldValues)
		}
	}
}

func (c *Consumer) deliver(id string, fields map[string]string) {
	attrs := make(map[string]string, len(fields))
	var data []byte
	for k, v := range fields {
		if k == payloadField {
			data = []byte(v)
			continue
		}
		attrs[k] = v
	}

	msg := &Message{
		id:      id,
		data:    data,
		attrs:   attrs,
		publish: entryPublishTime(id),
		c:       c,
	}
	if err := c.sink(msg); err != nil {
		// Left pending on purpose; the claim loop brings it back.
		c.log.Warn("sink rejected message", logx.String("msg", id), logx.Err(err))
	}
}

func (c *Consumer) ack(ctx context.Context, id string) error {
	return c.client.Do(ctx, c.client.B().Xack().
		Key(c.cfg.Stream).Group(c.cfg.Group).Id(id).Build()).Error()
}

func (c *Consumer) deadLetter(ctx context.Context, m *Message) error {
	fv := c.client.B().Xadd().Key(c.cfg.DeadLetterStream).Id("*").FieldValue()
	fv = fv.FieldValue(payloadField, string(m.data))
	fv = fv.FieldValue("origin_id", m.id)
	for k, v := range m.attrs {
		fv = fv.FieldValue(k, v)
	}
	if err := c.client.Do(ctx, fv.Build()).Error(); err != nil {
		return fmt.Errorf("bus: dead-letter %s: %w", m.id, err)
	}
	return c.ack(ctx, m.id)
}
