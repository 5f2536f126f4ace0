// Package model holds the in-memory representation of the physical ports
// and the VF slots carved out of them.
package model

import (
	"fmt"
	"strings"
)

// Capacity limits enforced by admission and the MAC registry.
const (
	MaxVFs       = 254
	MaxVFVlans   = 64
	MaxVFMacs    = 64
	MaxPortVlans = 64
	MaxPortMacs  = 128
	MaxTCs       = 8
	SpreadLimit  = 10
)

// UpdateState records what the pusher still owes the hardware for a slot.
type UpdateState int

const (
	Unchanged UpdateState = iota
	Added
	Deleted
	Reset
)

func (s UpdateState) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Deleted:
		return "deleted"
	case Reset:
		return "reset"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// LinkMode is the administrative link state forced onto a VF.
type LinkMode int

const (
	LinkAuto LinkMode = iota
	LinkUp
	LinkDown
)

func (m LinkMode) String() string {
	switch m {
	case LinkUp:
		return "up"
	case LinkDown:
		return "down"
	default:
		return "auto"
	}
}

// ParseLinkMode accepts on/up, off/down and auto in any case. The second
// return is false when the value was not recognised and auto was assumed.
func ParseLinkMode(s string) (LinkMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "up":
		return LinkUp, true
	case "off", "down":
		return LinkDown, true
	case "auto", "":
		return LinkAuto, true
	default:
		return LinkAuto, false
	}
}

// VFKey identifies one VF on one port.
type VFKey struct {
	PCIID string
	VF    int
}

func (k VFKey) String() string {
	return fmt.Sprintf("%s/%d", k.PCIID, k.VF)
}

// VFConfig is one VF slot. Num is -1 while the slot is a hole.
//
// MACs[0] is reserved for a default pushed by the guest; until that
// happens FirstMAC is 1 and MACs[0] is empty. MACs[FirstMAC] is the
// address the VF reports, everything after it is the whitelist.
type VFConfig struct {
	Num   int    `json:"vfid"`
	Owner int    `json:"owner"`
	Name  string `json:"name"`

	MACAntiSpoof  bool `json:"mac_anti_spoof"`
	VLANAntiSpoof bool `json:"vlan_anti_spoof"`
	AllowUntagged bool `json:"allow_untagged"`
	AllowBcast    bool `json:"allow_bcast"`
	AllowMcast    bool `json:"allow_mcast"`
	AllowUnUcast  bool `json:"allow_un_ucast"`
	StripSTag     bool `json:"strip_stag"`
	StripCTag     bool `json:"strip_ctag"`
	InsertSTag    bool `json:"insert_stag"`
	InsertCTag    bool `json:"insert_ctag"`

	Link    LinkMode `json:"link"`
	Rate    float64  `json:"rate"`
	MinRate float64  `json:"min_rate"`

	StartCB string `json:"start_cb,omitempty"`
	StopCB  string `json:"stop_cb,omitempty"`

	VLANs    []int    `json:"vlans"`
	MACs     []string `json:"macs"`
	FirstMAC int      `json:"first_mac"`

	QShares [MaxTCs]int `json:"qshares"`

	LastUpdated UpdateState `json:"last_updated"`
	Started     bool        `json:"started"`
}

// NewFreeSlot returns an empty slot.
func NewFreeSlot() *VFConfig {
	return &VFConfig{Num: -1, MACs: []string{""}, FirstMAC: 1}
}

// IsFree reports whether the slot is a hole.
func (v *VFConfig) IsFree() bool { return v.Num < 0 }

// IsActive reports whether the VF counts toward port totals: configured
// and not on its way out.
func (v *VFConfig) IsActive() bool {
	return v.Num >= 0 && v.LastUpdated != Deleted
}

// NumMACs is the number of addresses pushed to hardware.
func (v *VFConfig) NumMACs() int {
	if n := len(v.MACs) - v.FirstMAC; n > 0 {
		return n
	}
	return 0
}

// DefaultMAC returns the reported address, or "" when none is set.
func (v *VFConfig) DefaultMAC() string {
	if v.NumMACs() == 0 {
		return ""
	}
	return v.MACs[v.FirstMAC]
}

// Whitelist returns the secondary addresses after the default.
func (v *VFConfig) Whitelist() []string {
	if v.NumMACs() <= 1 {
		return nil
	}
	return v.MACs[v.FirstMAC+1:]
}

// ActiveMACs returns the default followed by the whitelist.
func (v *VFConfig) ActiveMACs() []string {
	if v.NumMACs() == 0 {
		return nil
	}
	return v.MACs[v.FirstMAC:]
}

// HasMAC reports whether mac is at or after FirstMAC.
func (v *VFConfig) HasMAC(mac string) bool {
	for _, m := range v.ActiveMACs() {
		if m == mac {
			return true
		}
	}
	return false
}

// HasVLAN reports whether id is in the VF's VLAN list.
func (v *VFConfig) HasVLAN(id int) bool {
	for _, x := range v.VLANs {
		if x == id {
			return true
		}
	}
	return false
}

// Key returns the VF's identity on port.
func (v *VFConfig) Key(pciid string) VFKey {
	return VFKey{PCIID: pciid, VF: v.Num}
}
