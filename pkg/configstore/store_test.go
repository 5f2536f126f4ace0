package configstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/util"
)

const pci = "0000:07:00.0"

func newStore() *Store {
	return New([]*model.PortConfig{model.NewPort(pci, "pf0", 9000, 4, 32)})
}

func vfWithID(id int) *model.VFConfig {
	vf := model.NewFreeSlot()
	vf.Num = id
	return vf
}

func addVF(t *testing.T, s *Store, id int) {
	t.Helper()
	require.NoError(t, s.Update(func() error {
		p, err := s.FindPort(pci)
		if err != nil {
			return err
		}
		slot, err := s.AllocateSlot(p)
		if err != nil {
			return err
		}
		return s.Commit(p, slot, vfWithID(id))
	}))
}

func TestMutationRequiresLock(t *testing.T) {
	s := newStore()
	p, err := s.FindPort(pci)
	require.NoError(t, err)

	_, err = s.AllocateSlot(p)
	assert.ErrorIs(t, err, util.ErrNotLocked)
	assert.ErrorIs(t, s.Commit(p, 0, vfWithID(1)), util.ErrNotLocked)
	assert.ErrorIs(t, s.MarkDeleted(p, 1), util.ErrNotLocked)
	assert.ErrorIs(t, s.FreeSlot(p, 1), util.ErrNotLocked)
	assert.Empty(t, p.VFs)
}

func TestLockState(t *testing.T) {
	s := newStore()
	assert.False(t, s.IsLocked())
	s.Lock()
	assert.True(t, s.IsLocked())
	s.Unlock()
	assert.False(t, s.IsLocked())
}

func TestFindPort_NotFound(t *testing.T) {
	s := newStore()
	_, err := s.FindPort("0000:99:00.0")
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestCommitMarksAdded(t *testing.T) {
	s := newStore()
	addVF(t, s, 4)

	p, _ := s.FindPort(pci)
	vf, err := s.FindVF(p, 4)
	require.NoError(t, err)
	assert.Equal(t, model.Added, vf.LastUpdated)
}

func TestDeleteThenAddReusesLowestHole(t *testing.T) {
	s := newStore()
	for _, id := range []int{0, 1, 2, 3, 4} {
		addVF(t, s, id)
	}
	p, _ := s.FindPort(pci)

	require.NoError(t, s.Update(func() error {
		if err := s.MarkDeleted(p, 3); err != nil {
			return err
		}
		// pending delete keeps the id, so the slot is not yet a hole
		slot, err := s.AllocateSlot(p)
		require.NoError(t, err)
		assert.Equal(t, 5, slot)
		return s.FreeSlot(p, 3)
	}))

	addVF(t, s, 9)
	assert.Equal(t, 9, p.VFs[3].Num, "slot index 3 should be reused")
	assert.Len(t, p.VFs, 5)
}

func TestFreeSlot_RequiresPendingDelete(t *testing.T) {
	s := newStore()
	addVF(t, s, 1)
	p, _ := s.FindPort(pci)

	err := s.Update(func() error { return s.FreeSlot(p, 1) })
	assert.True(t, errors.Is(err, util.ErrPreconditionFailed))
}

func TestCommit_OccupiedSlot(t *testing.T) {
	s := newStore()
	addVF(t, s, 1)
	p, _ := s.FindPort(pci)

	err := s.Update(func() error { return s.Commit(p, 0, vfWithID(2)) })
	assert.ErrorIs(t, err, util.ErrPreconditionFailed)
}

func TestAllocateSlot_Exhausted(t *testing.T) {
	s := newStore()
	p, _ := s.FindPort(pci)
	for i := 0; i < model.MaxVFs; i++ {
		p.VFs = append(p.VFs, vfWithID(i))
	}
	err := s.Update(func() error {
		_, err := s.AllocateSlot(p)
		return err
	})
	assert.ErrorIs(t, err, util.ErrResourceExhausted)
}

func TestResetDoesNotOverrideDelete(t *testing.T) {
	s := newStore()
	addVF(t, s, 1)
	p, _ := s.FindPort(pci)

	require.NoError(t, s.Update(func() error {
		if err := s.MarkDeleted(p, 1); err != nil {
			return err
		}
		return s.MarkReset(p, 1)
	}))
	assert.Equal(t, model.Deleted, p.VFs[0].LastUpdated)
}

func TestSnapshotIsDetached(t *testing.T) {
	s := newStore()
	addVF(t, s, 1)

	snap, ok := s.PortSnapshot(pci)
	require.True(t, ok)
	require.Len(t, snap.VFs, 1)

	p, _ := s.FindPort(pci)
	require.NoError(t, s.Update(func() error { return s.MarkSynced(p, 1) }))

	assert.Equal(t, model.Added, snap.VFs[0].LastUpdated, "old snapshot must not change")
	fresh, _ := s.PortSnapshot(pci)
	assert.Equal(t, model.Unchanged, fresh.VFs[0].LastUpdated)
}

func TestFailedUpdateKeepsSnapshot(t *testing.T) {
	s := newStore()
	before := s.Snapshot()

	err := s.Update(func() error { return util.NewValidationError("nope") })
	assert.Error(t, err)
	assert.Same(t, before[0], s.Snapshot()[0], "a failed update publishes nothing")
}
