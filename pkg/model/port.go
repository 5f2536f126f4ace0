package model

// TCConfig is the port-level definition of one traffic class.
type TCConfig struct {
	ID             int  `json:"id" yaml:"id"`
	MinBW          int  `json:"min_bw" yaml:"min_bw"`
	MaxBW          int  `json:"max_bw" yaml:"max_bw"`
	StrictPriority bool `json:"strict_priority" yaml:"strict_priority"`
	BWGroup        int  `json:"bw_group" yaml:"bw_group"`
}

// PortConfig is a physical function and its VF slots. Ports are created
// from the daemon parameters and live for the life of the process.
type PortConfig struct {
	PCIID            string      `json:"pciid"`
	Name             string      `json:"name"`
	MTU              int         `json:"mtu"`
	AllowLoopback    bool        `json:"loopback_allowed"`
	FlowControl      bool        `json:"flow_control"`
	AllowOversub     bool        `json:"oversubscription_allowed"`
	NumTCs           int         `json:"num_tcs"`
	TCs              []TCConfig  `json:"tcs"`
	NumVFsConfigured int         `json:"num_vfs_configured"`
	VFs              []*VFConfig `json:"vfs"`
	LastUpdated      UpdateState `json:"last_updated"`
}

// NewPort builds an empty port. ntcs other than 8 is treated as 4.
func NewPort(pciid, name string, mtu, ntcs, nvfs int) *PortConfig {
	if ntcs != 8 {
		ntcs = 4
	}
	p := &PortConfig{
		PCIID:            pciid,
		Name:             name,
		MTU:              mtu,
		NumTCs:           ntcs,
		NumVFsConfigured: nvfs,
	}
	for i := 0; i < ntcs; i++ {
		p.TCs = append(p.TCs, TCConfig{ID: i, MaxBW: 100})
	}
	return p
}

// Slot returns the index of the configured VF with id vfid, or -1. A slot
// pending delete still matches.
func (p *PortConfig) Slot(vfid int) int {
	if vfid < 0 {
		return -1
	}
	for i, vf := range p.VFs {
		if vf.Num == vfid {
			return i
		}
	}
	return -1
}

// VF returns the configured VF with id vfid, or nil.
func (p *PortConfig) VF(vfid int) *VFConfig {
	if i := p.Slot(vfid); i >= 0 {
		return p.VFs[i]
	}
	return nil
}

// FirstHole returns the lowest free slot index, or len(VFs) when the
// slot list has no holes.
func (p *PortConfig) FirstHole() int {
	for i, vf := range p.VFs {
		if vf.IsFree() {
			return i
		}
	}
	return len(p.VFs)
}

// ActiveVFs returns the VFs that count toward port totals, in slot order.
func (p *PortConfig) ActiveVFs() []*VFConfig {
	var out []*VFConfig
	for _, vf := range p.VFs {
		if vf.IsActive() {
			out = append(out, vf)
		}
	}
	return out
}

// ConfiguredVFs returns every non-hole slot, including those pending
// delete.
func (p *PortConfig) ConfiguredVFs() []*VFConfig {
	var out []*VFConfig
	for _, vf := range p.VFs {
		if !vf.IsFree() {
			out = append(out, vf)
		}
	}
	return out
}

// TotalVLANs counts VLANs across every configured VF.
func (p *PortConfig) TotalVLANs() int {
	n := 0
	for _, vf := range p.ConfiguredVFs() {
		n += len(vf.VLANs)
	}
	return n
}

// TotalMACs counts MACs across every configured VF.
func (p *PortConfig) TotalMACs() int {
	n := 0
	for _, vf := range p.ConfiguredVFs() {
		n += vf.NumMACs()
	}
	return n
}

// TotalMinRate sums the guaranteed rate across every configured VF.
func (p *PortConfig) TotalMinRate() float64 {
	var r float64
	for _, vf := range p.ConfiguredVFs() {
		r += vf.MinRate
	}
	return r
}

// TC8 reports whether the port runs eight traffic classes.
func (p *PortConfig) TC8() bool { return p.NumTCs == 8 }
