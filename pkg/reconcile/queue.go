// Package reconcile defers hardware pushes out of the request and event
// paths. Work is keyed by VF; enqueueing a VF that is already waiting is a
// no-op, so a burst of changes costs one push.
package reconcile

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/newtron-network/vfd/pkg/metrics"
	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/util"
)

const (
	// DefaultTick is how often the queue is drained.
	DefaultTick = 200 * time.Millisecond
	// DefaultReadyTimeout bounds how long an entry waits for the VF's queues.
	DefaultReadyTimeout = 30 * time.Second
)

// Syncer pushes the full policy for one VF.
type Syncer interface {
	Sync(ctx context.Context, key model.VFKey) error
	Ready(key model.VFKey) bool
}

// Queue is a coalescing FIFO of VFs waiting for a push.
type Queue struct {
	syncer       Syncer
	tick         time.Duration
	readyTimeout time.Duration
	limiter      *rate.Limiter
	now          func() time.Time

	mu      sync.Mutex
	pending map[model.VFKey]entry
	order   []model.VFKey
}

type entry struct {
	since time.Time
	// urgent entries are pushed without waiting for the VF's queues
	urgent bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithTick sets the drain interval.
func WithTick(d time.Duration) Option {
	return func(q *Queue) { q.tick = d }
}

// WithReadyTimeout sets how long an entry may wait for QueueReady before it
// is pushed anyway.
func WithReadyTimeout(d time.Duration) Option {
	return func(q *Queue) { q.readyTimeout = d }
}

// WithLimiter paces pushes. The default allows 50 per second with a burst
// of 10.
func WithLimiter(l *rate.Limiter) Option {
	return func(q *Queue) { q.limiter = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a queue that hands entries to syncer.
func New(syncer Syncer, opts ...Option) *Queue {
	q := &Queue{
		syncer:       syncer,
		tick:         DefaultTick,
		readyTimeout: DefaultReadyTimeout,
		limiter:      rate.NewLimiter(rate.Limit(50), 10),
		now:          time.Now,
		pending:      make(map[model.VFKey]entry),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue schedules a push for key. It returns false when key was already
// waiting.
func (q *Queue) Enqueue(key model.VFKey) bool {
	return q.add(key, false)
}

// EnqueueNow schedules a push for key that does not wait for the VF's
// queues to come up. Administrative adds and deletes use it: a VF bound to
// a guest driver may never report ready, and its slot must still be set up
// or torn down on the next drain. An entry already waiting is upgraded.
func (q *Queue) EnqueueNow(key model.VFKey) bool {
	return q.add(key, true)
}

func (q *Queue) add(key model.VFKey, urgent bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.pending[key]; ok {
		if urgent && !e.urgent {
			e.urgent = true
			q.pending[key] = e
		}
		return false
	}
	q.pending[key] = entry{since: q.now(), urgent: urgent}
	q.order = append(q.order, key)
	metrics.ReconcilePending.Set(float64(len(q.order)))
	util.WithVF(key.PCIID, key.VF).Debugf("refresh queued")
	return true
}

// Pending returns the number of waiting entries.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Keys returns the waiting entries in arrival order.
func (q *Queue) Keys() []model.VFKey {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.VFKey(nil), q.order...)
}

// Drain makes one pass over the queue and pushes every entry that is
// urgent, whose VF is ready, or whose wait has run out. It returns the number pushed. An entry
// is removed before its push, so a change that arrives during the push
// queues it again.
func (q *Queue) Drain(ctx context.Context) int {
	n := 0
	for _, key := range q.Keys() {
		if ctx.Err() != nil {
			break
		}
		e, ok := q.entry(key)
		if !ok {
			continue
		}
		log := util.WithVF(key.PCIID, key.VF)
		if !e.urgent && !q.syncer.Ready(key) {
			if q.now().Sub(e.since) < q.readyTimeout {
				continue
			}
			log.Warnf("vf queues not ready after %s; pushing anyway", q.readyTimeout)
			metrics.ReconcileReadyTimeoutsTotal.Inc()
		}
		if err := q.limiter.Wait(ctx); err != nil {
			break
		}
		q.remove(key)
		metrics.ReconcileRunsTotal.Inc()
		if err := q.syncer.Sync(ctx, key); err != nil {
			metrics.ReconcileErrorsTotal.Inc()
			log.Errorf("refresh failed: %v", err)
		}
		n++
	}
	return n
}

// Run drains the queue on every tick until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	t := time.NewTicker(q.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			q.Drain(ctx)
		}
	}
}

func (q *Queue) entry(key model.VFKey) (entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.pending[key]
	return e, ok
}

func (q *Queue) remove(key model.VFKey) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, key)
	for i, k := range q.order {
		if k == key {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	metrics.ReconcilePending.Set(float64(len(q.order)))
}
