// Package configstore owns the port and VF model and the single lock that
// serializes every structural change to it.
//
// Mutating methods require the store to be locked (Lock or Update) and
// return ErrNotLocked otherwise. Readers that only display state use
// Snapshot, which never takes the lock.
package configstore

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/mitchellh/copystructure"

	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/util"
)

// Store is the in-memory configuration of every managed port.
type Store struct {
	mu     sync.Mutex
	locked atomic.Bool
	dirty  bool

	ports []*model.PortConfig
	index map[string]*model.PortConfig

	snap atomic.Pointer[[]*model.PortConfig]
}

// New builds a store over ports, which are kept in the given order.
func New(ports []*model.PortConfig) *Store {
	s := &Store{index: make(map[string]*model.PortConfig, len(ports))}
	for _, p := range ports {
		s.ports = append(s.ports, p)
		s.index[p.PCIID] = p
	}
	s.publish()
	return s
}

// Lock acquires the update lock.
func (s *Store) Lock() {
	s.mu.Lock()
	s.locked.Store(true)
}

// Unlock releases the update lock, publishing a fresh snapshot when
// anything changed while it was held.
func (s *Store) Unlock() {
	if s.dirty {
		s.publish()
		s.dirty = false
	}
	s.locked.Store(false)
	s.mu.Unlock()
}

// IsLocked returns true if the update lock is held.
func (s *Store) IsLocked() bool {
	return s.locked.Load()
}

// Update runs fn with the lock held. Validation reads and the commit that
// follows them happen inside one critical section.
func (s *Store) Update(fn func() error) error {
	s.Lock()
	defer s.Unlock()
	return fn()
}

// Touch marks the model changed so the next Unlock republishes the
// snapshot. Callers that edit a VF in place (MAC pushes) use it.
func (s *Store) Touch() error {
	if err := s.requireLocked("touch", "store"); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

func (s *Store) requireLocked(op, resource string) error {
	if !s.IsLocked() {
		return fmt.Errorf("%s on %s: %w", op, resource, util.ErrNotLocked)
	}
	return nil
}

// Ports returns the live port list. Callers must hold the lock if they
// read VF state.
func (s *Store) Ports() []*model.PortConfig {
	return s.ports
}

// FindPort returns the port with the given PCI id.
func (s *Store) FindPort(pciid string) (*model.PortConfig, error) {
	p, ok := s.index[pciid]
	if !ok {
		return nil, util.NewNotFoundError("port", pciid)
	}
	return p, nil
}

// FindVF returns the configured VF vfid on port, including one pending
// delete.
func (s *Store) FindVF(port *model.PortConfig, vfid int) (*model.VFConfig, error) {
	vf := port.VF(vfid)
	if vf == nil {
		return nil, util.NewNotFoundError("vf", port.PCIID+"/"+strconv.Itoa(vfid))
	}
	return vf, nil
}

// AllocateSlot picks the slot a new VF would occupy: the lowest hole, or
// one past the end. Nothing is reserved until Commit.
func (s *Store) AllocateSlot(port *model.PortConfig) (int, error) {
	if err := s.requireLocked("allocate", port.PCIID); err != nil {
		return -1, err
	}
	idx := port.FirstHole()
	if idx >= model.MaxVFs {
		return -1, util.NewResourceExhaustedError("vf slots", model.MaxVFs, "max VFs already defined on port %s", port.PCIID)
	}
	return idx, nil
}

// Commit installs vf at slot and flags it for the hardware push.
func (s *Store) Commit(port *model.PortConfig, slot int, vf *model.VFConfig) error {
	if err := s.requireLocked("commit", port.PCIID); err != nil {
		return err
	}
	switch {
	case slot == len(port.VFs):
		port.VFs = append(port.VFs, vf)
	case slot >= 0 && slot < len(port.VFs) && port.VFs[slot].IsFree():
		port.VFs[slot] = vf
	default:
		return util.NewPreconditionError("commit", port.PCIID, "slot "+strconv.Itoa(slot)+" must be free", "")
	}
	vf.LastUpdated = model.Added
	port.LastUpdated = model.Added
	s.dirty = true
	return nil
}

// MarkDeleted flags vfid for teardown. Its id stays set so the slot is not
// reused before the hardware has been cleared.
func (s *Store) MarkDeleted(port *model.PortConfig, vfid int) error {
	return s.setState(port, vfid, "mark-deleted", model.Deleted)
}

// MarkReset flags vfid for a full re-push after a VF reset.
func (s *Store) MarkReset(port *model.PortConfig, vfid int) error {
	return s.setState(port, vfid, "mark-reset", model.Reset)
}

// MarkSynced records that the hardware matches the model for vfid.
func (s *Store) MarkSynced(port *model.PortConfig, vfid int) error {
	return s.setState(port, vfid, "mark-synced", model.Unchanged)
}

func (s *Store) setState(port *model.PortConfig, vfid int, op string, st model.UpdateState) error {
	if err := s.requireLocked(op, port.PCIID); err != nil {
		return err
	}
	vf, err := s.FindVF(port, vfid)
	if err != nil {
		return err
	}
	// a pending delete is never downgraded by a reset
	if vf.LastUpdated == model.Deleted && st == model.Reset {
		return nil
	}
	vf.LastUpdated = st
	s.dirty = true
	return nil
}

// FreeSlot turns vfid back into a hole once teardown is confirmed.
func (s *Store) FreeSlot(port *model.PortConfig, vfid int) error {
	if err := s.requireLocked("free", port.PCIID); err != nil {
		return err
	}
	i := port.Slot(vfid)
	if i < 0 {
		return util.NewNotFoundError("vf", port.PCIID+"/"+strconv.Itoa(vfid))
	}
	if port.VFs[i].LastUpdated != model.Deleted {
		return util.NewPreconditionError("free", port.PCIID+"/"+strconv.Itoa(vfid), "vf must be pending delete", "")
	}
	port.VFs[i] = model.NewFreeSlot()
	port.LastUpdated = model.Deleted
	s.dirty = true
	return nil
}

// Snapshot returns a deep copy of the model as of the last change. It does
// not take the lock. The copy is shared between readers and must not be
// modified.
func (s *Store) Snapshot() []*model.PortConfig {
	if p := s.snap.Load(); p != nil {
		return *p
	}
	return nil
}

// PortSnapshot returns the snapshot copy of one port.
func (s *Store) PortSnapshot(pciid string) (*model.PortConfig, bool) {
	for _, p := range s.Snapshot() {
		if p.PCIID == pciid {
			return p, true
		}
	}
	return nil, false
}

func (s *Store) publish() {
	c, err := copystructure.Copy(s.ports)
	if err != nil {
		util.WithComponent("configstore").Errorf("snapshot copy failed: %v", err)
		return
	}
	ports, _ := c.([]*model.PortConfig)
	s.snap.Store(&ports)
}
