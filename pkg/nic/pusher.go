package nic

import (
	"context"
	"errors"

	"github.com/mitchellh/copystructure"
	"github.com/sirupsen/logrus"

	"github.com/newtron-network/vfd/pkg/configstore"
	"github.com/newtron-network/vfd/pkg/hooks"
	"github.com/newtron-network/vfd/pkg/macreg"
	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/qshare"
	"github.com/newtron-network/vfd/pkg/util"
)

// rateQueueMask selects the queues a rate limit applies to.
const rateQueueMask uint32 = 0x01

// Pusher drives the full policy of one VF into a Driver. The store lock is
// held only to take a copy of the VF before programming and to record the
// outcome afterwards.
type Pusher struct {
	drv   Driver
	store *configstore.Store
	macs  *macreg.Registry
	hooks hooks.Runner
	qos   bool
}

// NewPusher creates a pusher. With qos set, per-class credits are
// recomputed and pushed whenever a VF on the port changes.
func NewPusher(drv Driver, store *configstore.Store, macs *macreg.Registry, runner hooks.Runner, qos bool) *Pusher {
	return &Pusher{drv: drv, store: store, macs: macs, hooks: runner, qos: qos}
}

// Driver returns the underlying driver.
func (p *Pusher) Driver() Driver { return p.drv }

// Ready reports whether the VF's queues are up.
func (p *Pusher) Ready(key model.VFKey) bool {
	return p.drv.QueueReady(key.PCIID, key.VF)
}

// plan is what a push acts on, taken under the lock.
type plan struct {
	state    model.UpdateState
	vf       *model.VFConfig
	mtu      int
	tc8      bool
	pct      []int
	loopback bool
	// rmac replaces the default of a VF being torn down
	rmac string
}

// Sync pushes the model for key to the NIC. A VF pending delete is torn
// down and its slot freed; any other VF gets the full policy. Driver
// failures are logged and returned together once every step has run.
func (p *Pusher) Sync(ctx context.Context, key model.VFKey) error {
	pl, ok, err := p.prepare(key)
	if err != nil || !ok {
		return err
	}
	log := util.WithVF(key.PCIID, key.VF).WithField("reason", pl.state.String())
	log.Infof("reconfigure vf")

	s := &steps{log: log}
	if pl.state == model.Deleted {
		if pl.vf.Started && pl.vf.StopCB != "" {
			p.runHook(ctx, pl.vf, pl.vf.StopCB)
		}
		p.teardown(s, key.PCIID, pl.vf, pl.rmac)
	} else {
		p.apply(s, key.PCIID, pl.vf)
	}
	if pl.state != model.Unchanged {
		s.do("SetLoopback", p.drv.SetLoopback(key.PCIID, pl.loopback))
		if p.qos {
			s.do("SetQosCredits", p.drv.SetQosCredits(key.PCIID, pl.mtu, pl.pct, pl.tc8))
		}
	}

	start, err := p.finish(key, pl.state)
	if err != nil {
		s.errs = append(s.errs, err)
	}
	if start != nil {
		p.runHook(ctx, start, start.StartCB)
	}
	return errors.Join(s.errs...)
}

// ReassertPort re-applies the port-wide settings that a PF reset or MTU
// change can drop. Flow control is only ever turned on, and only on ports
// that allow it.
func (p *Pusher) ReassertPort(pciid string) error {
	port, ok := p.store.PortSnapshot(pciid)
	if !ok {
		return util.NewNotFoundError("port", pciid)
	}
	s := &steps{log: util.WithPort(pciid)}
	s.do("SetLoopback", p.drv.SetLoopback(pciid, port.AllowLoopback))
	if port.FlowControl {
		s.do("SetFlowControl", p.drv.SetFlowControl(pciid, true))
	}
	return errors.Join(s.errs...)
}

// RunStopHooks runs the stop command of every started VF. The daemon calls
// it on shutdown.
func (p *Pusher) RunStopHooks(ctx context.Context) {
	for _, port := range p.store.Snapshot() {
		for _, vf := range port.ActiveVFs() {
			if vf.Started && vf.StopCB != "" {
				p.runHook(ctx, vf, vf.StopCB)
			}
		}
	}
}

func (p *Pusher) prepare(key model.VFKey) (plan, bool, error) {
	var pl plan
	found := false
	err := p.store.Update(func() error {
		port, err := p.store.FindPort(key.PCIID)
		if err != nil {
			return err
		}
		vf := port.VF(key.VF)
		if vf == nil {
			// freed by an earlier pass
			return nil
		}
		c, err := copystructure.Copy(vf)
		if err != nil {
			return util.NewInternalError("copy vf", err)
		}
		cp, ok := c.(*model.VFConfig)
		if !ok {
			return util.NewInternalError("copy vf", nil)
		}
		pl = plan{
			state:    vf.LastUpdated,
			vf:       cp,
			mtu:      port.MTU,
			tc8:      port.TC8(),
			pct:      qshare.Normalize(port).Pct,
			loopback: port.AllowLoopback,
		}
		if vf.LastUpdated == model.Deleted {
			pl.rmac = p.macs.ClearAll(port, vf, true)
		}
		found = true
		return nil
	})
	return pl, found, err
}

// finish records the outcome. It returns the VF whose start command should
// run, if any.
func (p *Pusher) finish(key model.VFKey, state model.UpdateState) (*model.VFConfig, error) {
	var start *model.VFConfig
	err := p.store.Update(func() error {
		port, err := p.store.FindPort(key.PCIID)
		if err != nil {
			return err
		}
		vf := port.VF(key.VF)
		if vf == nil {
			return nil
		}
		if state == model.Deleted {
			p.macs.Release(port, vf)
			return p.store.FreeSlot(port, key.VF)
		}
		// a delete or reset that arrived during the push wins
		if vf.LastUpdated != state {
			return nil
		}
		if err := p.store.MarkSynced(port, key.VF); err != nil {
			return err
		}
		if !vf.Started {
			vf.Started = true
			if vf.StartCB != "" {
				start = &model.VFConfig{Num: vf.Num, Owner: vf.Owner, Name: vf.Name, StartCB: vf.StartCB}
			}
		}
		return nil
	})
	return start, err
}

func (p *Pusher) runHook(ctx context.Context, vf *model.VFConfig, cmd string) {
	if p.hooks == nil {
		return
	}
	if err := p.hooks.Run(ctx, vf.Owner, cmd); err != nil {
		util.WithField("vf", vf.Num).Warnf("hook %q failed: %v", cmd, err)
	}
}

func (p *Pusher) apply(s *steps, pciid string, vf *model.VFConfig) {
	mask := VFMask(vf.Num)
	for _, vlan := range vf.VLANs {
		s.do("SetVfVlan", p.drv.SetVfVlan(pciid, vlan, mask, true))
	}
	if def := vf.DefaultMAC(); def != "" {
		s.do("SetVfDefaultMac", p.drv.SetVfDefaultMac(pciid, def, vf.Num))
	}
	for _, mac := range vf.Whitelist() {
		s.do("SetVfMac", p.drv.SetVfMac(pciid, mac, vf.Num, true))
	}
	if vf.Rate > 0 {
		s.do("SetRateLimit", p.drv.SetRateLimit(pciid, vf.Num, vf.Rate, rateQueueMask))
	}
	if vf.MinRate > 0 {
		s.do("SetMinRate", p.drv.SetMinRate(pciid, vf.Num, vf.MinRate, rateQueueMask))
	}
	s.do("SetSpoofing", p.drv.SetSpoofing(pciid, vf.Num, vf.MACAntiSpoof, vf.VLANAntiSpoof))
	s.do("SetStripTag", p.drv.SetStripTag(pciid, vf.Num, vf.StripSTag || vf.StripCTag))
	s.do("SetInsertTag", p.drv.SetInsertTag(pciid, vf.Num, vf.InsertSTag || vf.InsertCTag))
	s.do("SetAllowBcast", p.drv.SetAllowBcast(pciid, vf.Num, vf.AllowBcast))
	s.do("SetAllowMcast", p.drv.SetAllowMcast(pciid, vf.Num, vf.AllowMcast))
	s.do("SetAllowUnknownUnicast", p.drv.SetAllowUnknownUnicast(pciid, vf.Num, vf.AllowUnUcast))
	s.do("SetLinkState", p.drv.SetLinkState(pciid, vf.Num, vf.Link))
	s.do("SetAllowUntagged", p.drv.SetAllowUntagged(pciid, vf.Num, vf.AllowUntagged))
}

// teardown returns a deleted VF to defaults. Anti-spoof comes off before
// the MAC list is cleared and the rate limits are removed last.
func (p *Pusher) teardown(s *steps, pciid string, vf *model.VFConfig, rmac string) {
	mask := VFMask(vf.Num)
	for _, vlan := range vf.VLANs {
		s.do("SetVfVlan", p.drv.SetVfVlan(pciid, vlan, mask, false))
	}
	if vf.MACAntiSpoof {
		s.do("SetSpoofing", p.drv.SetSpoofing(pciid, vf.Num, false, vf.VLANAntiSpoof))
	}
	for _, mac := range vf.Whitelist() {
		s.do("SetVfMac", p.drv.SetVfMac(pciid, mac, vf.Num, false))
	}
	s.do("SetVfDefaultMac", p.drv.SetVfDefaultMac(pciid, rmac, vf.Num))
	if vf.Rate > 0 {
		s.do("SetRateLimit", p.drv.SetRateLimit(pciid, vf.Num, 0, rateQueueMask))
	}
	if vf.MinRate > 0 {
		s.do("SetMinRate", p.drv.SetMinRate(pciid, vf.Num, 0, rateQueueMask))
	}
	s.do("SetStripTag", p.drv.SetStripTag(pciid, vf.Num, false))
	s.do("SetInsertTag", p.drv.SetInsertTag(pciid, vf.Num, false))
	s.do("SetLinkState", p.drv.SetLinkState(pciid, vf.Num, model.LinkAuto))
	s.do("SetAllowUnknownUnicast", p.drv.SetAllowUnknownUnicast(pciid, vf.Num, false))
	s.do("SetAllowMcast", p.drv.SetAllowMcast(pciid, vf.Num, false))
}

// steps collects driver failures so one bad knob does not stop the rest.
type steps struct {
	log  *logrus.Entry
	errs []error
}

func (s *steps) do(op string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrUnsupported):
		s.log.Debugf("%s not supported by driver", op)
	default:
		s.log.Warnf("%s failed: %v", op, err)
		s.errs = append(s.errs, err)
	}
}
