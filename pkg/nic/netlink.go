//go:build linux

package nic

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/k8snetworkplumbingwg/sriovnet"
	"github.com/spf13/afero"
	"github.com/vishvananda/netlink"

	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/util"
)

// IFLA_VF_LINK_STATE values.
const (
	vfLinkStateAuto    uint32 = 0
	vfLinkStateEnable  uint32 = 1
	vfLinkStateDisable uint32 = 2
)

// Netlink drives PFs owned by the kernel through rtnetlink. The kernel
// exposes one VLAN and one MAC per VF, so the VLAN and MAC tables collapse
// onto those, and the per-class credit knobs are unsupported.
type Netlink struct {
	sysfs afero.Fs

	mu     sync.Mutex
	netdev map[string]string
	// vlans tracks the VLANs switched on per VF, so that the kernel's single
	// VLAN slot can fall back to trunk mode when there is more than one.
	vlans map[string]map[int]bool
}

// NewNetlink creates a driver reading link speeds from /sys.
func NewNetlink() *Netlink {
	return newNetlink(afero.NewOsFs())
}

func newNetlink(fs afero.Fs) *Netlink {
	return &Netlink{sysfs: fs, netdev: make(map[string]string), vlans: make(map[string]map[int]bool)}
}

// link resolves a PF PCI id to its netlink handle.
func (n *Netlink) link(pciid string) (netlink.Link, error) {
	n.mu.Lock()
	name, ok := n.netdev[pciid]
	n.mu.Unlock()
	if !ok {
		devs, err := sriovnet.GetNetDevicesFromPci(pciid)
		if err != nil {
			return nil, fmt.Errorf("finding netdev for %s: %w", pciid, err)
		}
		if len(devs) == 0 {
			return nil, util.NewNotFoundError("netdev for pf", pciid)
		}
		name = devs[0]
		n.mu.Lock()
		n.netdev[pciid] = name
		n.mu.Unlock()
	}
	l, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", name, err)
	}
	return l, nil
}

// linkSpeed returns the PF speed in Mb/s.
func (n *Netlink) linkSpeed(l netlink.Link) (int, error) {
	b, err := afero.ReadFile(n.sysfs, filepath.Join("/sys/class/net", l.Attrs().Name, "speed"))
	if err != nil {
		return 0, err
	}
	s, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || s <= 0 {
		return 0, fmt.Errorf("link speed unknown for %s", l.Attrs().Name)
	}
	return s, nil
}

func (n *Netlink) SetVfVlan(port string, vlan int, vfMask uint64, on bool) error {
	l, err := n.link(port)
	if err != nil {
		return err
	}
	for _, vf := range MaskVFs(vfMask) {
		key := model.VFKey{PCIID: port, VF: vf}.String()
		n.mu.Lock()
		set := n.vlans[key]
		if set == nil {
			set = make(map[int]bool)
			n.vlans[key] = set
		}
		if on {
			set[vlan] = true
		} else {
			delete(set, vlan)
		}
		target := 0
		if len(set) == 1 {
			for v := range set {
				target = v
			}
		}
		n.mu.Unlock()

		if err := netlink.LinkSetVfVlan(l, vf, target); err != nil {
			return fmt.Errorf("setting vlan %d on %s vf %d: %w", target, port, vf, err)
		}
	}
	return nil
}

// SetVfMac has no kernel equivalent for secondary addresses.
func (n *Netlink) SetVfMac(string, string, int, bool) error { return ErrUnsupported }

func (n *Netlink) SetVfDefaultMac(port, mac string, vf int) error {
	l, err := n.link(port)
	if err != nil {
		return err
	}
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return err
	}
	return netlink.LinkSetVfHardwareAddr(l, vf, hw)
}

// SetSpoofing maps the MAC flag onto spoofchk; the kernel has no separate
// VLAN anti-spoof knob.
func (n *Netlink) SetSpoofing(port string, vf int, macOn, _ bool) error {
	l, err := n.link(port)
	if err != nil {
		return err
	}
	return netlink.LinkSetVfSpoofchk(l, vf, macOn)
}

func (n *Netlink) SetStripTag(string, int, bool) error { return ErrUnsupported }

func (n *Netlink) SetInsertTag(string, int, bool) error { return ErrUnsupported }

func (n *Netlink) SetAllowBcast(string, int, bool) error { return ErrUnsupported }

func (n *Netlink) SetAllowMcast(string, int, bool) error { return ErrUnsupported }

// SetAllowUnknownUnicast maps onto VF trust, which lets the VF enter
// promiscuous mode.
func (n *Netlink) SetAllowUnknownUnicast(port string, vf int, on bool) error {
	l, err := n.link(port)
	if err != nil {
		return err
	}
	return netlink.LinkSetVfTrust(l, vf, on)
}

func (n *Netlink) SetAllowUntagged(string, int, bool) error { return ErrUnsupported }

func (n *Netlink) SetLinkState(port string, vf int, mode model.LinkMode) error {
	l, err := n.link(port)
	if err != nil {
		return err
	}
	state := vfLinkStateAuto
	switch mode {
	case model.LinkUp:
		state = vfLinkStateEnable
	case model.LinkDown:
		state = vfLinkStateDisable
	}
	return netlink.LinkSetVfState(l, vf, state)
}

func (n *Netlink) SetRateLimit(port string, vf int, rate float64, _ uint32) error {
	return n.setRate(port, vf, rate, false)
}

func (n *Netlink) SetMinRate(port string, vf int, rate float64, _ uint32) error {
	return n.setRate(port, vf, rate, true)
}

func (n *Netlink) setRate(port string, vf int, rate float64, guaranteed bool) error {
	l, err := n.link(port)
	if err != nil {
		return err
	}
	mbps := 0
	if rate > 0 {
		speed, err := n.linkSpeed(l)
		if err != nil {
			return err
		}
		mbps = int(float64(speed) * rate)
	}
	var cur netlink.VfInfo
	for _, v := range l.Attrs().Vfs {
		if v.ID == vf {
			cur = v
		}
	}
	minRate, maxRate := int(cur.MinTxRate), int(cur.MaxTxRate)
	if guaranteed {
		minRate = mbps
	} else {
		maxRate = mbps
	}
	return netlink.LinkSetVfRate(l, vf, minRate, maxRate)
}

func (n *Netlink) SetQosCredits(string, int, []int, bool) error { return ErrUnsupported }

func (n *Netlink) SetLoopback(string, bool) error { return ErrUnsupported }

// SetFlowControl is left to ethtool; netlink has no pause frame attribute.
func (n *Netlink) SetFlowControl(string, bool) error { return ErrUnsupported }

// QueueReady reports whether a driver has bound the VF, which is when the
// kernel has created its netdev.
func (n *Netlink) QueueReady(port string, vf int) bool {
	l, err := n.link(port)
	if err != nil {
		return false
	}
	vfs, err := sriovnet.GetVfPciDevList(l.Attrs().Name)
	if err != nil {
		return false
	}
	for _, vfPCI := range vfs {
		idx, err := sriovnet.GetVfIndexByPciAddress(vfPCI)
		if err != nil || idx != vf {
			continue
		}
		devs, err := sriovnet.GetNetDevicesFromPci(vfPCI)
		return err == nil && len(devs) > 0
	}
	return false
}
