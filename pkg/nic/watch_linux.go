//go:build linux

package nic

import (
	"context"
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/newtron-network/vfd/pkg/arbiter"
	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/util"
)

// SubmitFunc hands a translated VF request to the arbiter and waits for
// its decision.
type SubmitFunc func(ctx context.Context, ev arbiter.Event) (arbiter.Result, error)

// Watcher turns VF address changes reported by kernel PFs into mailbox
// events. A kernel PF applies the guest's request itself, so a refused
// change is undone by the refresh the arbiter schedules.
type Watcher struct {
	drv    *Netlink
	ports  []string
	submit SubmitFunc
	seen   map[model.VFKey]string
}

// NewWatcher creates a watcher over the PFs in ports.
func NewWatcher(drv *Netlink, ports []string, submit SubmitFunc) *Watcher {
	return &Watcher{drv: drv, ports: ports, submit: submit, seen: make(map[model.VFKey]string)}
}

// Run follows link updates until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	log := util.WithComponent("nic-watch")
	byIndex := make(map[int]string, len(w.ports))
	for _, pciid := range w.ports {
		l, err := w.drv.link(pciid)
		if err != nil {
			log.Warnf("not watching %s: %v", pciid, err)
			continue
		}
		byIndex[l.Attrs().Index] = pciid
		w.prime(pciid, l)
	}
	if len(byIndex) == 0 {
		<-ctx.Done()
		return nil
	}

	updates := make(chan netlink.LinkUpdate, 64)
	done := make(chan struct{})
	defer close(done)
	err := netlink.LinkSubscribeWithOptions(updates, done, netlink.LinkSubscribeOptions{
		ErrorCallback: func(err error) { log.Warnf("link subscription: %v", err) },
	})
	if err != nil {
		return fmt.Errorf("subscribing to link updates: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if u.Link == nil {
				continue
			}
			if pciid, ok := byIndex[u.Link.Attrs().Index]; ok {
				w.observe(ctx, pciid, u.Link.Attrs().Vfs)
			}
		}
	}
}

func (w *Watcher) prime(pciid string, l netlink.Link) {
	for _, vf := range l.Attrs().Vfs {
		w.seen[model.VFKey{PCIID: pciid, VF: vf.ID}] = vf.Mac.String()
	}
}

// observe submits a default MAC event for every VF whose address moved
// since the last update.
func (w *Watcher) observe(ctx context.Context, pciid string, vfs []netlink.VfInfo) {
	for _, vf := range vfs {
		key := model.VFKey{PCIID: pciid, VF: vf.ID}
		mac := vf.Mac.String()
		prev, known := w.seen[key]
		w.seen[key] = mac
		if !known || prev == mac || len(vf.Mac) != 6 || util.IsZeroMAC(vf.Mac) {
			continue
		}
		ev := arbiter.Event{Kind: arbiter.SetDefaultMac, PCIID: pciid, VF: vf.ID, MAC: append(net.HardwareAddr(nil), vf.Mac...)}
		res, err := w.submit(ctx, ev)
		log := util.WithVF(pciid, vf.ID)
		switch {
		case err != nil:
			log.Warnf("mac change %s not arbitrated: %v", mac, err)
		case res.Decision == arbiter.NoopNack:
			log.Infof("mac change %s refused: %v", mac, res.Err)
		default:
			log.Debugf("mac change %s accepted", mac)
		}
	}
}
