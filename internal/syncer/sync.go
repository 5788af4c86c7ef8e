package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mrlokans/bibliotheek/internal/entities"
)

// kindSyncer is the per-kind part of a full sync pass.
type kindSyncer interface {
	Kind() entities.Kind
	push(ctx context.Context) (int, error)
	pull(ctx context.Context) (fetched, applied int, err error)
}

// KindReport is the outcome of one kind within a pass.
type KindReport struct {
	Kind     entities.Kind
	Pushed   int
	Fetched  int
	Applied  int
	PushErr  error
	PullErr  error
	Duration time.Duration
}

func (r KindReport) Err() error {
	return errors.Join(r.PushErr, r.PullErr)
}

// SyncReport is the outcome of a full pass. Kinds are listed in dependency
// order.
type SyncReport struct {
	PassID     string
	StartedAt  time.Time
	FinishedAt time.Time
	Kinds      []KindReport
}

// OK reports whether every kind synced without error.
func (r SyncReport) OK() bool {
	for _, k := range r.Kinds {
		if k.Err() != nil {
			return false
		}
	}
	return true
}

// Failed returns the kinds that did not sync cleanly.
func (r SyncReport) Failed() []entities.Kind {
	var out []entities.Kind
	for _, k := range r.Kinds {
		if k.Err() != nil {
			out = append(out, k.Kind)
		}
	}
	return out
}

// SyncAll runs one full pass: local changes are pushed first, kind by kind in
// dependency order, then every kind is pulled and applied to the cache.
// Categories, books and members are pulled concurrently; loans follow once
// the rows they reference are in place. A failing kind does not stop the
// others. Outcomes are recorded, never returned as an error.
func (o *Orchestrator) SyncAll(ctx context.Context) SyncReport {
	report := SyncReport{PassID: uuid.NewString(), StartedAt: time.Now()}
	log := o.log.With(zap.String("pass_id", report.PassID))
	log.Info("sync pass started")

	kinds := o.kinds()
	results := make([]KindReport, len(kinds))
	for i, k := range kinds {
		results[i].Kind = k.Kind()
		o.startState(ctx, report.PassID, k.Kind())
	}

	if o.cfg.PushPending {
		if o.sess.Authenticated() {
			for i, k := range kinds {
				results[i].Pushed, results[i].PushErr = k.push(ctx)
			}
		} else {
			log.Info("not signed in, skipping push of local changes")
		}
	}

	pull := func(i int) {
		start := time.Now()
		results[i].Fetched, results[i].Applied, results[i].PullErr = kinds[i].pull(ctx)
		results[i].Duration = time.Since(start)
	}

	var g errgroup.Group
	last := len(kinds) - 1
	for i := 0; i < last; i++ {
		g.Go(func() error {
			pull(i)
			return nil
		})
	}
	_ = g.Wait()
	pull(last)

	report.Kinds = results
	report.FinishedAt = time.Now()
	for _, r := range results {
		o.finishState(ctx, report.PassID, r)
	}

	o.recordPass(ctx, report)
	log.Info("sync pass finished",
		zap.Bool("ok", report.OK()),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	return report
}

func (o *Orchestrator) startState(ctx context.Context, passID string, kind entities.Kind) {
	if o.states == nil {
		return
	}
	if err := o.states.Start(ctx, kind, passID); err != nil {
		o.log.Error("failed to record sync start", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (o *Orchestrator) finishState(ctx context.Context, passID string, r KindReport) {
	status := entities.AuditStatusSuccess
	description := fmt.Sprintf("pushed %d, fetched %d, applied %d", r.Pushed, r.Fetched, r.Applied)
	if err := r.Err(); err != nil {
		status = entities.AuditStatusFailed
		if r.PullErr == nil {
			status = entities.AuditStatusDegraded
		}
		o.log.Warn("kind failed to sync",
			zap.String("pass_id", passID),
			zap.String("kind", string(r.Kind)),
			zap.Error(err))
	}
	o.record(ctx, entities.AuditEvent{
		PassID:      passID,
		EventType:   entities.AuditEventSync,
		Kind:        r.Kind,
		Action:      "sync_kind",
		Description: description,
		Status:      status,
	}, 0, r.Err())

	if o.states == nil {
		return
	}
	// Record the outcome even when the pass context was cancelled.
	if err := o.states.Complete(context.WithoutCancel(ctx), r.Kind, r.Applied, r.Pushed, r.Err()); err != nil {
		o.log.Error("failed to record sync outcome", zap.String("kind", string(r.Kind)), zap.Error(err))
	}
}

func (o *Orchestrator) recordPass(ctx context.Context, report SyncReport) {
	status := entities.AuditStatusSuccess
	var err error
	if failed := report.Failed(); len(failed) > 0 {
		status = entities.AuditStatusDegraded
		if len(failed) == len(report.Kinds) {
			status = entities.AuditStatusFailed
		}
		err = fmt.Errorf("kinds failed: %v", failed)
	}
	o.record(ctx, entities.AuditEvent{
		PassID:      report.PassID,
		EventType:   entities.AuditEventSync,
		Action:      "sync_all",
		Description: fmt.Sprintf("full sync of %d kinds", len(report.Kinds)),
		Status:      status,
	}, 0, err)
}

// Handle tracks a pass running in the background.
type Handle struct {
	done   chan struct{}
	once   sync.Once
	report SyncReport
}

// Done is closed when the pass has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the pass finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (SyncReport, error) {
	select {
	case <-h.done:
		return h.report, nil
	case <-ctx.Done():
		return SyncReport{}, ctx.Err()
	}
}

func (h *Handle) finish(r SyncReport) {
	h.once.Do(func() {
		h.report = r
		close(h.done)
	})
}

// SyncInBackground starts a full pass on its own goroutine. The pass runs
// until ctx is cancelled or it completes; its outcome reaches the audit sink
// either way.
func (o *Orchestrator) SyncInBackground(ctx context.Context) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.log.Error("sync pass panicked", zap.Any("panic", r))
				o.record(ctx, entities.AuditEvent{
					EventType:   entities.AuditEventSync,
					Action:      "sync_all",
					Description: "sync pass aborted",
					Status:      entities.AuditStatusFailed,
				}, 0, fmt.Errorf("panic: %v", r))
				h.finish(SyncReport{})
			}
		}()
		h.finish(o.SyncAll(ctx))
	}()
	return h
}

// Available reports whether the store of record is currently believed
// reachable.
func (o *Orchestrator) Available() bool {
	return o.client.Available()
}
