package nic

import (
	"github.com/sirupsen/logrus"

	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/util"
)

// NoHarm logs what would be programmed and changes nothing. The daemon
// uses it when started with --no-harm.
type NoHarm struct {
	log *logrus.Entry
}

// NewNoHarm creates the logging driver.
func NewNoHarm() *NoHarm {
	return &NoHarm{log: util.WithComponent("nic").WithField("mode", "no-harm")}
}

func (n *NoHarm) note(op string, args ...interface{}) error {
	n.log.Debugf("skipped %s", describe(op, args...))
	return nil
}

func (n *NoHarm) SetVfVlan(port string, vlan int, vfMask uint64, on bool) error {
	return n.note("SetVfVlan", port, vlan, vfMask, on)
}

func (n *NoHarm) SetVfMac(port, mac string, vf int, on bool) error {
	return n.note("SetVfMac", port, mac, vf, on)
}

func (n *NoHarm) SetVfDefaultMac(port, mac string, vf int) error {
	return n.note("SetVfDefaultMac", port, mac, vf)
}

func (n *NoHarm) SetSpoofing(port string, vf int, macOn, vlanOn bool) error {
	return n.note("SetSpoofing", port, vf, macOn, vlanOn)
}

func (n *NoHarm) SetStripTag(port string, vf int, on bool) error {
	return n.note("SetStripTag", port, vf, on)
}

func (n *NoHarm) SetInsertTag(port string, vf int, on bool) error {
	return n.note("SetInsertTag", port, vf, on)
}

func (n *NoHarm) SetAllowBcast(port string, vf int, on bool) error {
	return n.note("SetAllowBcast", port, vf, on)
}

func (n *NoHarm) SetAllowMcast(port string, vf int, on bool) error {
	return n.note("SetAllowMcast", port, vf, on)
}

func (n *NoHarm) SetAllowUnknownUnicast(port string, vf int, on bool) error {
	return n.note("SetAllowUnknownUnicast", port, vf, on)
}

func (n *NoHarm) SetAllowUntagged(port string, vf int, on bool) error {
	return n.note("SetAllowUntagged", port, vf, on)
}

func (n *NoHarm) SetLinkState(port string, vf int, mode model.LinkMode) error {
	return n.note("SetLinkState", port, vf, mode)
}

func (n *NoHarm) SetRateLimit(port string, vf int, rate float64, queueMask uint32) error {
	return n.note("SetRateLimit", port, vf, rate, queueMask)
}

func (n *NoHarm) SetMinRate(port string, vf int, rate float64, queueMask uint32) error {
	return n.note("SetMinRate", port, vf, rate, queueMask)
}

func (n *NoHarm) SetQosCredits(port string, mtu int, pct []int, tc8 bool) error {
	return n.note("SetQosCredits", port, mtu, pct, tc8)
}

func (n *NoHarm) SetLoopback(port string, on bool) error {
	return n.note("SetLoopback", port, on)
}

func (n *NoHarm) SetFlowControl(port string, on bool) error {
	return n.note("SetFlowControl", port, on)
}

// QueueReady always reports ready so the reconciler never waits.
func (n *NoHarm) QueueReady(string, int) bool { return true }
