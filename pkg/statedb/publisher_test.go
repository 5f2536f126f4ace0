package statedb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/vfd/internal/testutil"
	"github.com/newtron-network/vfd/pkg/admission"
	"github.com/newtron-network/vfd/pkg/configstore"
	"github.com/newtron-network/vfd/pkg/macreg"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]TableChange
	fail    error
}

func (f *fakeWriter) Apply(_ context.Context, changes []TableChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.batches = append(f.batches, changes)
	return nil
}

func (f *fakeWriter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func keys(changes []TableChange) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.RedisKey()
	}
	return out
}

func addVF(t *testing.T, store *configstore.Store, macs *macreg.Registry, vfid int) {
	t.Helper()
	_, err := admission.New(store, macs).Add(testutil.Doc(t, testutil.PCI0, vfid, ""), "test")
	require.NoError(t, err)
}

func TestPublish_WritesOnlyChanges(t *testing.T) {
	store, macs := testutil.Env()
	w := &fakeWriter{}
	p := NewPublisher(w, store, time.Second)
	ctx := context.Background()

	addVF(t, store, macs, 1)
	n, err := p.Publish(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{
		"VFD_PORT|0000:07:00.0",
		"VFD_PORT|0000:07:00.1",
		"VFD_VF|0000:07:00.0|1",
	}, keys(w.batches[0]))

	vf := w.batches[0][2].Fields
	assert.Equal(t, "vm-1", vf["name"])
	assert.Equal(t, "101", vf["vlans"])
	assert.Equal(t, "added", vf["state"])
	assert.Equal(t, "100,100,100,100", vf["shares"])
	assert.Equal(t, "1", w.batches[0][0].Fields["active_vfs"])

	n, err = p.Publish(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, w.calls(), "nothing to write")

	addVF(t, store, macs, 2)
	n, err = p.Publish(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{
		"VFD_PORT|0000:07:00.0",
		"VFD_VF|0000:07:00.0|1",
		"VFD_VF|0000:07:00.0|2",
	}, keys(w.batches[1]))
	assert.Equal(t, "50,50,50,50", w.batches[1][1].Fields["shares"])
}

func TestPublish_DeletesFreedVF(t *testing.T) {
	store, macs := testutil.Env()
	w := &fakeWriter{}
	p := NewPublisher(w, store, time.Second)
	ctx := context.Background()

	addVF(t, store, macs, 4)
	_, err := p.Publish(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Update(func() error {
		port := store.Ports()[0]
		if err := store.MarkDeleted(port, 4); err != nil {
			return err
		}
		return store.FreeSlot(port, 4)
	}))
	_, err = p.Publish(ctx)
	require.NoError(t, err)

	last := w.batches[len(w.batches)-1]
	require.Len(t, last, 2)
	assert.Equal(t, "VFD_PORT|0000:07:00.0", last[0].RedisKey())
	assert.Equal(t, "VFD_VF|0000:07:00.0|4", last[1].RedisKey())
	assert.Nil(t, last[1].Fields, "freed vf is deleted")
}

func TestPublish_FailureRetriesSameChanges(t *testing.T) {
	store, macs := testutil.Env()
	w := &fakeWriter{fail: errors.New("connection refused")}
	p := NewPublisher(w, store, time.Second)
	addVF(t, store, macs, 1)

	_, err := p.Publish(context.Background())
	assert.Error(t, err)

	w.fail = nil
	n, err := p.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRun(t *testing.T) {
	store, _ := testutil.Env()
	w := &fakeWriter{}
	p := NewPublisher(w, store, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return w.calls() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
