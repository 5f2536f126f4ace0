// Package nic programs VF policy into a physical function.
//
// Driver is the narrow set of per-VF and per-port knobs the daemon turns.
// Recorder captures calls for tests, NoHarm only logs them, and the
// netlink driver drives kernel-managed PFs.
package nic

import (
	"errors"
	"fmt"

	"github.com/newtron-network/vfd/pkg/model"
)

// ErrUnsupported is returned by drivers for a knob the hardware or kernel
// interface cannot express. Callers log it and continue.
var ErrUnsupported = errors.New("operation not supported by driver")

// Driver is the NIC programming interface. Port arguments are PCI ids.
type Driver interface {
	SetVfVlan(port string, vlan int, vfMask uint64, on bool) error
	SetVfMac(port, mac string, vf int, on bool) error
	SetVfDefaultMac(port, mac string, vf int) error
	SetSpoofing(port string, vf int, macOn, vlanOn bool) error
	SetStripTag(port string, vf int, on bool) error
	SetInsertTag(port string, vf int, on bool) error
	SetAllowBcast(port string, vf int, on bool) error
	SetAllowMcast(port string, vf int, on bool) error
	SetAllowUnknownUnicast(port string, vf int, on bool) error
	SetAllowUntagged(port string, vf int, on bool) error
	SetLinkState(port string, vf int, mode model.LinkMode) error
	// SetRateLimit caps the VF at rate (a fraction of link speed; 0 removes
	// the cap) on the queues in queueMask.
	SetRateLimit(port string, vf int, rate float64, queueMask uint32) error
	// SetMinRate guarantees rate (a fraction of link speed) to the VF.
	SetMinRate(port string, vf int, rate float64, queueMask uint32) error
	// SetQosCredits programs the per VF per class percentages, laid out
	// vf*ntcs+tc.
	SetQosCredits(port string, mtu int, pct []int, tc8 bool) error
	SetLoopback(port string, on bool) error
	// SetFlowControl turns link level pause frames on or off in both
	// directions. Thresholds and timers are left as they are.
	SetFlowControl(port string, on bool) error
	QueueReady(port string, vf int) bool
}

// VFMask returns the bit for vf in a VLAN filter mask.
func VFMask(vf int) uint64 {
	if vf < 0 || vf > 63 {
		return 0
	}
	return 1 << uint(vf)
}

// MaskVFs lists the VF numbers set in mask.
func MaskVFs(mask uint64) []int {
	var out []int
	for vf := 0; vf < 64; vf++ {
		if mask&(1<<uint(vf)) != 0 {
			out = append(out, vf)
		}
	}
	return out
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// describe renders a call for logs and the recorder.
func describe(op string, args ...interface{}) string {
	s := op + "("
	for i, a := range args {
		if i > 0 {
			s += ","
		}
		switch v := a.(type) {
		case bool:
			s += onOff(v)
		case uint64:
			s += fmt.Sprintf("%#x", v)
		case uint32:
			s += fmt.Sprintf("%#x", v)
		default:
			s += fmt.Sprint(v)
		}
	}
	return s + ")"
}
