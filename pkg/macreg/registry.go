// Package macreg tracks which VF owns each MAC address on a port.
//
// The registry is a dedup index only. A VF's own ordered MAC list remains
// the source of truth for what is pushed to hardware; the registry exists
// so that a guest cannot claim an address already assigned to a sibling.
package macreg

import (
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/util"
)

type entry struct {
	mac   string
	pciid string
}

// Registry maps (mac, port) to the owning VF id.
type Registry struct {
	mu     sync.Mutex
	owner  map[entry]int
	random func() string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{owner: make(map[entry]int), random: util.RandomMAC}
}

// SetRandomSource replaces the generator ClearAll draws replacement
// defaults from.
func (r *Registry) SetRandomSource(fn func() string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.random = fn
}

// Owner returns the VF that owns mac on pciid.
func (r *Registry) Owner(pciid, mac string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vf, ok := r.owner[entry{util.NormalizeMAC(mac), pciid}]
	return vf, ok
}

// Len returns the number of registered addresses across all ports.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owner)
}

// OwnedBy returns the addresses registered to vfid on pciid, sorted.
func (r *Registry) OwnedBy(pciid string, vfid int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	macs := lo.FilterMap(lo.Entries(r.owner), func(e lo.Entry[entry, int], _ int) (string, bool) {
		return e.Key.mac, e.Key.pciid == pciid && e.Value == vfid
	})
	sort.Strings(macs)
	return macs
}

// CanAdd checks whether mac could be given to vf. A nil vf means the VF is
// being admitted and is not in the port's slot list yet, so only the
// ownership and port-wide checks apply.
func (r *Registry) CanAdd(port *model.PortConfig, vf *model.VFConfig, mac string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canAdd(port, vf, mac, true)
}

func (r *Registry) canAdd(port *model.PortConfig, vf *model.VFConfig, mac string, grows bool) error {
	if !util.IsValidMAC(mac) {
		return util.NewValidationError("invalid mac address: " + mac)
	}
	mac = util.NormalizeMAC(mac)

	if owner, ok := r.owner[entry{mac, port.PCIID}]; ok && (vf == nil || owner != vf.Num) {
		return util.NewConflictError("mac "+mac, "mac %s is already in use on port %s by vf %d", mac, port.PCIID, owner)
	}
	if !grows {
		return nil
	}
	if total := port.TotalMACs(); total+1 > model.MaxPortMacs {
		return util.NewResourceExhaustedError("port macs", model.MaxPortMacs,
			"adding mac %s would exceed the port limit of %d", mac, model.MaxPortMacs)
	}
	if vf != nil && vf.NumMACs()+1 > model.MaxVFMacs {
		return util.NewResourceExhaustedError("vf macs", model.MaxVFMacs,
			"adding mac %s would exceed the vf limit of %d", mac, model.MaxVFMacs)
	}
	return nil
}

// Add appends mac to vf's whitelist and records ownership. Adding an
// address the VF already carries is a successful no-op.
func (r *Registry) Add(port *model.PortConfig, vf *model.VFConfig, mac string) error {
	mac = util.NormalizeMAC(mac)
	if vf.HasMAC(mac) {
		util.WithVF(port.PCIID, vf.Num).Debugf("mac %s already in list, no action", mac)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.canAdd(port, vf, mac, true); err != nil {
		return err
	}
	for len(vf.MACs) < vf.FirstMAC {
		vf.MACs = append(vf.MACs, "")
	}
	vf.MACs = append(vf.MACs, mac)
	r.owner[entry{mac, port.PCIID}] = vf.Num
	util.WithVF(port.PCIID, vf.Num).Debugf("mac %s added, nm=%d fm=%d", mac, vf.NumMACs(), vf.FirstMAC)
	return nil
}

// PushDefault makes mac the address the VF reports: slot 0 is overwritten
// and FirstMAC becomes 0. Pushing the current default again is a no-op.
func (r *Registry) PushDefault(port *model.PortConfig, vf *model.VFConfig, mac string) error {
	mac = util.NormalizeMAC(mac)
	if vf.DefaultMAC() == mac {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// overwriting an earlier guest default does not grow the list
	grows := vf.FirstMAC != 0 && !lo.Contains(vf.Whitelist(), mac)
	if err := r.canAdd(port, vf, mac, grows); err != nil {
		return err
	}

	if vf.FirstMAC == 0 && len(vf.MACs) > 0 {
		delete(r.owner, entry{vf.MACs[0], port.PCIID})
	}
	if len(vf.MACs) == 0 {
		vf.MACs = []string{""}
	}
	// promoted from the whitelist: drop the secondary copy
	if i := lo.IndexOf(vf.MACs[1:], mac); i >= 0 {
		vf.MACs = append(vf.MACs[:i+1], vf.MACs[i+2:]...)
	}
	vf.MACs[0] = mac
	vf.FirstMAC = 0
	r.owner[entry{mac, port.PCIID}] = vf.Num

	util.WithVF(port.PCIID, vf.Num).Infof("default mac pushed onto head of list: %s num=%d", mac, vf.NumMACs())
	return nil
}

// ClearAll removes the whitelist and deregisters it. With randomize the
// default is dropped as well and a fresh locally administered address is
// returned for the caller to program; otherwise the default is kept and
// the returned string is empty.
func (r *Registry) ClearAll(port *model.PortConfig, vf *model.VFConfig, randomize bool) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := util.WithVF(port.PCIID, vf.Num)
	log.Infof("clearing macs: use_rand=%v fm=%d nm=%d", randomize, vf.FirstMAC, vf.NumMACs())

	for _, m := range vf.Whitelist() {
		r.release(port.PCIID, vf.Num, m)
	}

	if randomize {
		if def := vf.DefaultMAC(); def != "" {
			r.release(port.PCIID, vf.Num, def)
		}
		rmac := r.random()
		log.Debugf("replacing default %q with random %s", vf.DefaultMAC(), rmac)
		vf.MACs = []string{""}
		vf.FirstMAC = 1
		return rmac
	}

	if vf.NumMACs() > 0 {
		vf.MACs = vf.MACs[:vf.FirstMAC+1]
	}
	return ""
}

// Release deregisters every address owned by vf on port. It is called once
// hardware teardown has completed.
func (r *Registry) Release(port *model.PortConfig, vf *model.VFConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range vf.ActiveMACs() {
		r.release(port.PCIID, vf.Num, m)
	}
}

func (r *Registry) release(pciid string, vfid int, mac string) {
	k := entry{util.NormalizeMAC(mac), pciid}
	if owner, ok := r.owner[k]; ok && owner == vfid {
		delete(r.owner, k)
	}
}
