package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/newtron-network/vfd/pkg/model"
)

type fakeSyncer struct {
	mu       sync.Mutex
	notReady map[model.VFKey]bool
	synced   []model.VFKey
	fail     error
	onSync   func(model.VFKey)
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{notReady: make(map[model.VFKey]bool)}
}

func (f *fakeSyncer) Sync(_ context.Context, key model.VFKey) error {
	f.mu.Lock()
	f.synced = append(f.synced, key)
	hook := f.onSync
	f.mu.Unlock()
	if hook != nil {
		hook(key)
	}
	return f.fail
}

func (f *fakeSyncer) Ready(key model.VFKey) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.notReady[key]
}

func (f *fakeSyncer) Synced() []model.VFKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.VFKey(nil), f.synced...)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func k(vf int) model.VFKey { return model.VFKey{PCIID: "0000:07:00.0", VF: vf} }

func newQueue(s Syncer, c *clock) *Queue {
	return New(s, WithClock(c.now), WithLimiter(rate.NewLimiter(rate.Inf, 1)), WithReadyTimeout(time.Second))
}

func TestEnqueueCoalesces(t *testing.T) {
	q := newQueue(newFakeSyncer(), &clock{t: time.Unix(0, 0)})

	assert.True(t, q.Enqueue(k(1)))
	assert.False(t, q.Enqueue(k(1)))
	assert.True(t, q.Enqueue(k(2)))
	assert.True(t, q.Enqueue(model.VFKey{PCIID: "0000:07:00.1", VF: 1}))
	assert.Equal(t, 3, q.Pending())
	assert.Equal(t, []model.VFKey{k(1), k(2), {PCIID: "0000:07:00.1", VF: 1}}, q.Keys())
}

func TestDrainInOrder(t *testing.T) {
	s := newFakeSyncer()
	q := newQueue(s, &clock{t: time.Unix(0, 0)})
	q.Enqueue(k(3))
	q.Enqueue(k(1))
	q.Enqueue(k(3))

	require.Equal(t, 2, q.Drain(context.Background()))
	assert.Equal(t, []model.VFKey{k(3), k(1)}, s.Synced())
	assert.Zero(t, q.Pending())
}

func TestDrainWaitsForReadiness(t *testing.T) {
	s := newFakeSyncer()
	c := &clock{t: time.Unix(0, 0)}
	q := newQueue(s, c)
	s.notReady[k(1)] = true
	q.Enqueue(k(1))
	q.Enqueue(k(2))

	assert.Equal(t, 1, q.Drain(context.Background()))
	assert.Equal(t, []model.VFKey{k(2)}, s.Synced())
	assert.Equal(t, []model.VFKey{k(1)}, q.Keys())

	c.advance(500 * time.Millisecond)
	assert.Zero(t, q.Drain(context.Background()))

	// the deadline runs from the first enqueue, not from a coalesced one
	assert.False(t, q.Enqueue(k(1)))
	c.advance(600 * time.Millisecond)
	assert.Equal(t, 1, q.Drain(context.Background()))
	assert.Equal(t, []model.VFKey{k(2), k(1)}, s.Synced())
}

func TestEnqueueNowSkipsReadiness(t *testing.T) {
	s := newFakeSyncer()
	q := newQueue(s, &clock{t: time.Unix(0, 0)})
	s.notReady[k(1)] = true
	s.notReady[k(2)] = true
	s.notReady[k(3)] = true

	assert.True(t, q.EnqueueNow(k(1)))
	q.Enqueue(k(2))
	q.Enqueue(k(3))
	// a waiting entry is upgraded but not duplicated
	assert.False(t, q.EnqueueNow(k(3)))

	assert.Equal(t, 2, q.Drain(context.Background()))
	assert.Equal(t, []model.VFKey{k(1), k(3)}, s.Synced())
	assert.Equal(t, []model.VFKey{k(2)}, q.Keys())
}

func TestChangeDuringSyncRequeues(t *testing.T) {
	s := newFakeSyncer()
	q := newQueue(s, &clock{t: time.Unix(0, 0)})
	s.onSync = func(key model.VFKey) {
		if len(s.Synced()) == 1 {
			assert.True(t, q.Enqueue(key))
		}
	}
	q.Enqueue(k(4))

	assert.Equal(t, 1, q.Drain(context.Background()))
	assert.Equal(t, 1, q.Pending())
	assert.Equal(t, 1, q.Drain(context.Background()))
	assert.Len(t, s.Synced(), 2)
}

func TestSyncErrorDropsEntry(t *testing.T) {
	s := newFakeSyncer()
	s.fail = errors.New("driver gone")
	q := newQueue(s, &clock{t: time.Unix(0, 0)})
	q.Enqueue(k(1))

	assert.Equal(t, 1, q.Drain(context.Background()))
	assert.Zero(t, q.Pending())
}

func TestDrainStopsOnCancel(t *testing.T) {
	s := newFakeSyncer()
	q := newQueue(s, &clock{t: time.Unix(0, 0)})
	q.Enqueue(k(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Zero(t, q.Drain(ctx))
	assert.Equal(t, 1, q.Pending())
}

func TestRunDrainsOnTick(t *testing.T) {
	s := newFakeSyncer()
	q := New(s, WithTick(5*time.Millisecond))
	q.Enqueue(k(7))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- q.Run(ctx) }()

	require.Eventually(t, func() bool { return len(s.Synced()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
