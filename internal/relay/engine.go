package relay

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"buildrelay/internal/build"
	"buildrelay/internal/render"
	logx "buildrelay/pkg/logx"
)

// decodeFailCap bounds the poison-tracking map. If the bus floods us with
// distinct undecodable messages the map is reset; those messages just take
// one extra redelivery round before hitting the cap again.
const decodeFailCap = 1024

// Engine wires the queue, cache and dispatcher together.
type Engine struct {
	mu sync.Mutex

	cfg   Config
	reg   Registry
	msgr  Messenger
	audit Auditor
	rend  *render.Renderer
	log   logx.Logger

	cache     *Cache
	limiter   *rate.Limiter
	timeoutNS atomic.Int64

	accepting bool
	queue     chan Message
	// stopping signals the worker to drain the backlog and exit. The
	// queue channel itself is never closed, so Enqueue can never race a
	// close into a send panic.
	stopping  chan struct{}
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	// decodeFails counts consecutive decode failures per bus message id.
	// Only the worker goroutine touches it.
	decodeFails map[string]int
}

// New builds an engine. The auditor may be nil.
func New(cfg Config, reg Registry, msgr Messenger, audit Auditor, rend *render.Renderer, log logx.Logger) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:         cfg,
		reg:         reg,
		msgr:        msgr,
		audit:       audit,
		rend:        rend,
		log:         log,
		cache:       NewCache(cfg.CacheTTL, cfg.SweepInterval),
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		decodeFails: map[string]int{},
	}
	e.timeoutNS.Store(int64(cfg.DispatchTimeout))
	return e
}

// ApplyTunables adjusts the dispatch rate and timeout on a running engine.
// Queue size and cache TTL take effect on restart only.
func (e *Engine) ApplyTunables(ratePerSec int, dispatchTimeout time.Duration) {
	if ratePerSec > 0 {
		e.limiter.SetLimit(rate.Limit(ratePerSec))
		e.limiter.SetBurst(ratePerSec)
	}
	if dispatchTimeout > 0 {
		e.timeoutNS.Store(int64(dispatchTimeout))
	}
}

func (e *Engine) dispatchTimeout() time.Duration {
	return time.Duration(e.timeoutNS.Load())
}

// Cache exposes the delivery cache for maintenance jobs and tests.
func (e *Engine) Cache() *Cache { return e.cache }

// Start launches the single pipeline worker. Exactly one worker ever runs:
// total processing order matches arrival order, and no two events race on
// the same cache entry.
//
// The worker's context is independent of ctx so that a cancelled startup
// context (a delivered signal) does not abort the backlog drain in Stop.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopping != nil {
		return
	}

	e.queue = make(chan Message, e.cfg.QueueSize)
	e.stopping = make(chan struct{})
	e.accepting = true

	runCtx, cancel := context.WithCancel(context.Background())
	e.runCancel = cancel

	q := e.queue
	stop := e.stopping
	e.workerWG.Add(1)
	go func() {
		defer e.workerWG.Done()
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("panic in relay worker", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		e.workerLoop(runCtx, q, stop)
	}()

	e.log.Info("relay engine started",
		logx.Int("queue_size", e.cfg.QueueSize),
		logx.Duration("cache_ttl", e.cfg.CacheTTL))
}

// Stop blocks intake, drains the backlog best-effort until ctx expires,
// then cancels in-flight work.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	stop := e.stopping
	cancel := e.runCancel
	if stop == nil {
		e.mu.Unlock()
		return
	}
	e.accepting = false
	e.stopping = nil
	e.runCancel = nil
	e.mu.Unlock()

	close(stop)

	done := make(chan struct{})
	go func() {
		e.workerWG.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		cancel()
		<-done
	case <-done:
		cancel()
	}
	e.log.Info("relay engine stopped")
}

// Enqueue appends a message to the processing backlog. It never blocks:
// when the backlog is full the message is dropped and the bus's own
// redelivery brings it back.
func (e *Engine) Enqueue(msg Message) error {
	e.mu.Lock()
	q := e.queue
	accepting := e.accepting
	e.mu.Unlock()

	if q == nil || !accepting {
		return ErrStopped
	}
	select {
	case q <- msg:
		return nil
	default:
		e.log.Warn("relay queue full; dropping message", logx.String("msg", msg.ID()))
		return ErrQueueFull
	}
}

func (e *Engine) workerLoop(ctx context.Context, q chan Message, stop chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			// Intake is already blocked; drain whatever is queued.
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-q:
					e.process(ctx, msg)
				default:
					return
				}
			}
		case msg := <-q:
			// One failed item must not stop the loop.
			e.process(ctx, msg)
		}
	}
}

// process runs the full per-event pipeline: decode, render, dispatch to
// all endpoints, acknowledge.
func (e *Engine) process(ctx context.Context, msg Message) {
	ev, err := build.Decode(msg.Data(), msg.Attributes(), msg.PublishTime())
	if err != nil {
		e.handleDecodeFailure(ctx, msg, err)
		return
	}
	delete(e.decodeFails, msg.ID())

	body, cat := e.rend.Render(ev)

	if cat == render.CategoryUnknown {
		// First-class outcome, not an error: surfaced for operators,
		// nothing dispatched.
		e.log.Info("unknown build status",
			logx.String("subject", ev.SubjectID),
			logx.String("status", ev.RawStatus))
		e.ack(ctx, msg)
		return
	}

	if err := e.dispatchAll(ctx, ev, body); err != nil {
		// Could not even list endpoints; leave unacked so the bus
		// retries once the registry is reachable again.
		e.log.Error("endpoint listing failed; leaving message unacked", logx.Err(err))
		return
	}

	e.ack(ctx, msg)
}

func (e *Engine) handleDecodeFailure(ctx context.Context, msg Message, err error) {
	if len(e.decodeFails) >= decodeFailCap {
		e.decodeFails = map[string]int{}
	}
	e.decodeFails[msg.ID()]++
	n := e.decodeFails[msg.ID()]

	if n < e.cfg.DecodeRetryMax {
		// Unacked on purpose: redelivery may succeed if the failure
		// was transient.
		e.log.Error("decode failed; leaving message unacked",
			logx.String("msg", msg.ID()), logx.Int("attempt", n), logx.Err(err))
		return
	}

	e.log.Error("decode failed repeatedly; dead-lettering",
		logx.String("msg", msg.ID()), logx.Int("attempts", n), logx.Err(err))
	if dlErr := msg.DeadLetter(ctx); dlErr != nil {
		e.log.Error("dead-letter failed", logx.String("msg", msg.ID()), logx.Err(dlErr))
		return
	}
	delete(e.decodeFails, msg.ID())
}

func (e *Engine) ack(ctx context.Context, msg Message) {
	if err := msg.Ack(ctx); err != nil {
		// The bus will redeliver; the delivery cache suppresses the
		// visible duplicates.
		e.log.Warn("ack failed", logx.String("msg", msg.ID()), logx.Err(err))
	}
}
