package arbiter

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/newtron-network/vfd/pkg/configstore"
	"github.com/newtron-network/vfd/pkg/macreg"
	"github.com/newtron-network/vfd/pkg/metrics"
	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/util"
)

// Enqueuer schedules a full policy push for a VF.
type Enqueuer interface {
	Enqueue(key model.VFKey) bool
}

// PortReasserter re-applies port-wide settings after an MTU change.
type PortReasserter interface {
	ReassertPort(pciid string) error
}

// Arbiter holds the state the decision table reads.
type Arbiter struct {
	store  *configstore.Store
	macs   *macreg.Registry
	queue  Enqueuer
	ports  PortReasserter
	events chan request
}

type request struct {
	ev    Event
	reply chan Result
}

// New creates an arbiter. ports may be nil.
func New(store *configstore.Store, macs *macreg.Registry, queue Enqueuer, ports PortReasserter) *Arbiter {
	return &Arbiter{
		store:  store,
		macs:   macs,
		queue:  queue,
		ports:  ports,
		events: make(chan request, 64),
	}
}

// Submit hands ev to the consumer and waits for the decision. It is what a
// driver callback calls; the callback itself does no policy work.
func (a *Arbiter) Submit(ctx context.Context, ev Event) (Result, error) {
	r := request{ev: ev, reply: make(chan Result, 1)}
	select {
	case a.events <- r:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case res := <-r.reply:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Run consumes submitted events until ctx is cancelled.
func (a *Arbiter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-a.events:
			r.reply <- a.Decide(r.ev)
		}
	}
}

// Decide applies the decision table to ev and performs its side effects.
// Events for a VF that is not configured, or is on its way out, are
// refused.
func (a *Arbiter) Decide(ev Event) Result {
	log := util.WithVF(ev.PCIID, ev.VF).WithField("event", ev.Kind.String())

	var res Result
	refresh := false
	reassert := false

	err := a.store.Update(func() error {
		port, err := a.store.FindPort(ev.PCIID)
		if err != nil {
			res = a.nack(ev, "port not managed")
			return nil
		}
		vf := port.VF(ev.VF)
		if vf == nil || !vf.IsActive() {
			res = a.nack(ev, "vf not configured")
			return nil
		}
		res, refresh, reassert = a.decide(log, ev, port, vf)
		return nil
	})
	if err != nil {
		res = Result{Decision: NoopNack, Err: err}
	}

	if refresh {
		a.queue.Enqueue(model.VFKey{PCIID: ev.PCIID, VF: ev.VF})
	}
	if reassert && a.ports != nil {
		if err := a.ports.ReassertPort(ev.PCIID); err != nil {
			log.Warnf("unable to reassert port settings: %v", err)
		}
	}

	metrics.MailboxEventsTotal.WithLabelValues(ev.Kind.String(), res.Decision.String()).Inc()
	log.WithField("decision", res.Decision.String()).Debugf("mailbox event arbitrated")
	return res
}

// decide runs with the store locked.
func (a *Arbiter) decide(log *logrus.Entry, ev Event, port *model.PortConfig, vf *model.VFConfig) (res Result, refresh, reassert bool) {
	switch ev.Kind {
	case Reset:
		if err := a.store.MarkReset(port, vf.Num); err != nil {
			log.Warnf("unable to mark vf for reset: %v", err)
		}
		return Result{Decision: NoopAck}, true, false

	case SetDefaultMac:
		mac := util.FormatMAC(ev.MAC)
		if len(ev.MAC) != 6 {
			return a.nack(ev, "malformed mac"), true, false
		}
		if err := a.macs.PushDefault(port, vf, mac); err != nil {
			log.Warnf("default mac %s refused: %v", mac, err)
			return a.nack(ev, err.Error()), true, false
		}
		_ = a.store.Touch()
		return Result{Decision: Proceed}, true, false

	case SetMulticast, ApiNegotiate, GetQueues, UpdateXcastMode:
		return Result{Decision: Proceed}, true, false

	case SetVlan:
		log.Infof("vlan %d requested by guest; configured=%v", ev.Value, vf.HasVLAN(ev.Value))
		return Result{Decision: NoopAck}, true, false

	case SetMtu:
		if ev.Value > port.MTU {
			log.Warnf("mtu %d exceeds port mtu %d", ev.Value, port.MTU)
			return a.nack(ev, "mtu exceeds port mtu"), false, false
		}
		return Result{Decision: Proceed}, true, true

	case SetSecondaryMac:
		switch {
		case len(ev.MAC) == 0:
			return Result{Decision: Proceed}, false, false
		case len(ev.MAC) != 6:
			return a.nack(ev, "malformed mac"), false, false
		case util.IsZeroMAC(ev.MAC):
			a.macs.ClearAll(port, vf, false)
			_ = a.store.Touch()
			return Result{Decision: Proceed}, true, false
		}
		mac := util.FormatMAC(ev.MAC)
		if err := a.macs.Add(port, vf, mac); err != nil {
			log.Warnf("secondary mac %s refused: %v", mac, err)
			return a.nack(ev, err.Error()), false, false
		}
		_ = a.store.Touch()
		return Result{Decision: Proceed}, true, false
	}

	log.Warnf("unrecognised mailbox message")
	return a.nack(ev, "unknown message"), false, false
}

func (a *Arbiter) nack(ev Event, reason string) Result {
	return Result{Decision: NoopNack, Err: util.NewEventRejectedError(ev.Kind.String(), ev.PCIID, ev.VF, reason)}
}
