package relay

import (
	"context"
	"time"

	"buildrelay/internal/build"
	"buildrelay/internal/registry"
	"buildrelay/internal/render"
	logx "buildrelay/pkg/logx"
)

// dispatchAll fans the rendered notification out to every active endpoint,
// sequentially. A failing endpoint never blocks the others; per-endpoint
// outcomes are logged and audited, not propagated.
func (e *Engine) dispatchAll(ctx context.Context, ev *build.Event, body render.Body) error {
	eps, err := e.reg.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, ep := range eps {
		e.dispatchOne(ctx, ep, ev, body)
	}
	return nil
}

func (e *Engine) dispatchOne(ctx context.Context, ep registry.Endpoint, ev *build.Event, body render.Body) {
	if !ep.Active {
		return
	}

	key := Key{EndpointID: ep.ID, SubjectID: ev.SubjectID}
	if !e.cache.ShouldDeliver(key, ev.PublishTime) {
		// Stale or duplicate delivery from the bus. Not an error; the
		// cache must not be touched.
		e.log.Debug("skipping out of order message",
			logx.String("endpoint", ep.ID),
			logx.String("subject", ev.SubjectID),
			logx.Time("publish", ev.PublishTime))
		e.auditOutcome(ep.ID, ev.SubjectID, "skip", true, "", 0)
		return
	}
	rec, exists := e.cache.Lookup(key)

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.dispatchTimeout())
	defer cancel()

	start := time.Now()
	var (
		op        string
		messageID string
		err       error
	)
	if exists {
		op = "edit"
		messageID = rec.MessageID
		err = e.msgr.Edit(callCtx, ep, rec.MessageID, body)
	} else {
		op = "create"
		messageID, err = e.msgr.Create(callCtx, ep, body)
	}
	took := time.Since(start)

	if err != nil {
		// Isolated: the next endpoint still gets its dispatch, the event
		// is still acknowledged, and the cache entry stays as-is.
		e.log.Warn("dispatch failed",
			logx.String("op", op),
			logx.String("endpoint", ep.ID),
			logx.String("subject", ev.SubjectID),
			logx.Duration("took", took),
			logx.Err(err))
		e.auditOutcome(ep.ID, ev.SubjectID, op, false, err.Error(), took.Milliseconds())
		return
	}

	e.cache.Write(key, ev.PublishTime, messageID)
	e.auditOutcome(ep.ID, ev.SubjectID, op, true, "", took.Milliseconds())
}

func (e *Engine) auditOutcome(endpointID, subjectID, op string, ok bool, errText string, tookMS int64) {
	if e.audit == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.audit.AppendAudit(actx, registry.AuditEntry{
		At:         time.Now(),
		EndpointID: endpointID,
		SubjectID:  subjectID,
		Op:         op,
		OK:         ok,
		Error:      errText,
		TookMS:     tookMS,
	}); err != nil {
		e.log.Debug("audit append failed", logx.Err(err))
	}
}
