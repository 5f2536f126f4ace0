// Package admission decides whether a VF document may be added to or
// removed from the model. Nothing in the store or the MAC registry changes
// until every check has passed.
package admission

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/newtron-network/vfd/pkg/configstore"
	"github.com/newtron-network/vfd/pkg/macreg"
	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/qshare"
	"github.com/newtron-network/vfd/pkg/util"
	"github.com/newtron-network/vfd/pkg/vfdoc"
)

// Validator admits documents against one store and registry.
type Validator struct {
	store *configstore.Store
	macs  *macreg.Registry
}

// New creates a validator.
func New(store *configstore.Store, macs *macreg.Registry) *Validator {
	return &Validator{store: store, macs: macs}
}

// addCheck carries the state gathered while vetting one add. Checks run in
// order and the first failure ends the add.
type addCheck struct {
	v      *Validator
	doc    *vfdoc.Document
	source string

	port   *model.PortConfig
	slot   int
	shares [model.MaxTCs]int
	macs   []string
}

// Add validates doc and, when every check passes, installs it in the
// lowest free slot of its port and registers its MACs. source names the
// document in rejection messages. The returned VF is the live slot.
func (v *Validator) Add(doc *vfdoc.Document, source string) (*model.VFConfig, error) {
	c := &addCheck{v: v, doc: doc, source: source}
	var vf *model.VFConfig

	err := v.store.Update(func() error {
		steps := []func() error{
			c.requiredFields,
			c.uniqueID,
			c.idRange,
			c.vlanCounts,
			c.macCounts,
			c.stripTag,
			c.vlanIDs,
			c.macAddrs,
			c.oversubscription,
			c.spread,
			c.hooks,
			c.rates,
			c.minRateTotal,
			c.vlanPresent,
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return err
			}
		}
		util.WithVF(c.port.PCIID, doc.VFID).Debugf("vf configuration vet complete for %s", doc.Name)

		var err error
		vf, err = c.commit()
		return err
	})
	if err != nil {
		util.WithField("source", source).Infof("vf not added: %v", err)
		return nil, err
	}
	util.WithVF(doc.PCIID, vf.Num).Infof("vf was added to internal config: %s nm=%d", vf.Name, vf.NumMACs())
	return vf, nil
}

func (c *addCheck) requiredFields() error {
	if c.doc.PCIID == "" || c.doc.VFID < 0 {
		return util.NewValidationError(fmt.Sprintf("unable to read or parse config file: %s", c.source))
	}
	port, err := c.v.store.FindPort(c.doc.PCIID)
	if err != nil {
		return portNotFound(c.doc)
	}
	c.port = port
	shares, err := c.doc.QShares()
	if err != nil {
		return util.NewValidationError(err.Error())
	}
	for tc := port.NumTCs; tc < model.MaxTCs; tc++ {
		if shares[tc] != 0 {
			return util.NewValidationError(fmt.Sprintf("queue priority %d out of range; port %s has %d traffic classes",
				tc, port.PCIID, port.NumTCs))
		}
	}
	c.shares = shares
	return nil
}

func (c *addCheck) uniqueID() error {
	if c.port.VF(c.doc.VFID) != nil {
		return util.NewConflictError("vf", "vfid %d already exists on port %s", c.doc.VFID, c.doc.PCIID)
	}
	slot, err := c.v.store.AllocateSlot(c.port)
	if err != nil {
		return util.NewResourceExhaustedError("vf slots", model.MaxVFs,
			"max VFs already defined or vfid %d is out of range", c.doc.VFID)
	}
	c.slot = slot
	return nil
}

func (c *addCheck) idRange() error {
	if c.doc.VFID >= model.MaxVFs {
		return util.NewResourceExhaustedError("vf slots", model.MaxVFs,
			"max VFs already defined or vfid %d is out of range", c.doc.VFID)
	}
	if c.doc.VFID >= c.port.NumVFsConfigured {
		return util.NewValidationError(fmt.Sprintf("vf %d is out of range; only %d VFs are configured on port %s",
			c.doc.VFID, c.port.NumVFsConfigured, c.port.PCIID))
	}
	return nil
}

func (c *addCheck) vlanCounts() error {
	n := len(c.doc.VLANs)
	if n > model.MaxVFVlans {
		return util.NewResourceExhaustedError("vf vlans", model.MaxVFVlans,
			"number of vlans supplied (%d) exceeds the maximum (%d)", n, model.MaxVFVlans)
	}
	if n+c.port.TotalVLANs() > model.MaxPortVlans {
		return util.NewResourceExhaustedError("port vlans", model.MaxPortVlans,
			"number of vlans supplied (%d) cauess total for PF to exceed the maximum (%d)", n, model.MaxPortVlans)
	}
	return nil
}

func (c *addCheck) macCounts() error {
	c.macs = lo.Map(c.doc.MACs, func(m string, _ int) string { return util.NormalizeMAC(strings.TrimSpace(m)) })
	n := len(c.macs)
	// vm_mac takes a slot of its own unless it repeats a listed address
	if c.doc.VMMAC != "" && !lo.Contains(c.macs, util.NormalizeMAC(c.doc.VMMAC)) {
		n++
	}
	if n > model.MaxVFMacs {
		return util.NewResourceExhaustedError("vf macs", model.MaxVFMacs,
			"too many mac addresses given: %d > limit of %d", n, model.MaxVFMacs)
	}
	if n+c.port.TotalMACs() > model.MaxPortMacs {
		return util.NewResourceExhaustedError("port macs", model.MaxPortMacs,
			"number of macs supplied (%d) causes total for PF to exceed the maximum (%d)", n, model.MaxPortMacs)
	}
	return nil
}

func (c *addCheck) stripTag() error {
	if c.doc.StripSTag && len(c.doc.VLANs) > 1 {
		return util.NewValidationError(fmt.Sprintf(
			"strip_stag may not be set when more than one vlan is given: %d vlans", len(c.doc.VLANs)))
	}
	return nil
}

func (c *addCheck) vlanIDs() error {
	seen := make(map[int]bool, len(c.doc.VLANs))
	for _, id := range c.doc.VLANs {
		if err := util.ValidateVLANID(id); err != nil {
			return util.NewValidationError(err.Error())
		}
		if seen[id] {
			return util.NewConflictError("vlan", "duplicate vlan in list: %d", id)
		}
		seen[id] = true
	}
	return nil
}

func (c *addCheck) macAddrs() error {
	candidates := c.macs
	if c.doc.VMMAC != "" {
		candidates = append(lo.Without(candidates, util.NormalizeMAC(c.doc.VMMAC)), util.NormalizeMAC(c.doc.VMMAC))
	}
	seen := make(map[string]bool, len(c.macs))
	for _, m := range c.macs {
		if seen[m] {
			return util.NewConflictError("mac", "duplicate mac in list: %s", m)
		}
		seen[m] = true
	}
	for _, m := range candidates {
		if err := c.v.macs.CanAdd(c.port, nil, m); err != nil {
			msg := fmt.Sprintf("mac cannot be added to this port (invalid, inuse, or max exceeded for VF): mac=(%s)", m)
			util.WithPort(c.port.PCIID).Debugf("%s: %v", msg, err)
			if _, ok := err.(*util.ConflictError); ok {
				return util.NewConflictError("mac", "%s", msg)
			}
			return util.NewValidationError(msg)
		}
	}
	return nil
}

func (c *addCheck) oversubscription() error {
	if c.port.AllowOversub {
		return nil
	}
	if over := qshare.Oversubscribed(c.port, c.shares); len(over) > 0 {
		return util.NewResourceExhaustedError("tc shares", 100,
			"TC percentages cause one or more total allocation to exceed 100%%")
	}
	return nil
}

func (c *addCheck) spread() error {
	if bad := qshare.SpreadExceeded(c.port, c.shares); len(bad) > 0 {
		return util.NewValidationError(fmt.Sprintf("min-max spread for one or more TCs would exceed %dx", model.SpreadLimit))
	}
	return nil
}

func (c *addCheck) hooks() error {
	if util.HasStatementSeparator(c.doc.StartCB) {
		return util.NewValidationError("start_cb command contains invalid character: " + util.StatementSeparator)
	}
	if util.HasStatementSeparator(c.doc.StopCB) {
		return util.NewValidationError("stop_cb command contains invalid character: " + util.StatementSeparator)
	}
	return nil
}

func (c *addCheck) rates() error {
	if c.doc.Rate < 0 || c.doc.Rate > 1 {
		return util.NewValidationError(fmt.Sprintf("rate %g is out of range; must be between 0 and 1", c.doc.Rate))
	}
	if c.doc.MinRate < 0 || c.doc.MinRate > 1 {
		return util.NewValidationError(fmt.Sprintf("min_rate %g is out of range; must be between 0 and 1", c.doc.MinRate))
	}
	return nil
}

func (c *addCheck) minRateTotal() error {
	if c.doc.MinRate+c.port.TotalMinRate() > 1 {
		return util.NewResourceExhaustedError("min rate", 1, "total guaranteed rate exceeds link speed")
	}
	return nil
}

func (c *addCheck) vlanPresent() error {
	if len(c.doc.VLANs) == 0 {
		return util.NewValidationError("vlan id list is empty; it must contain at least one id")
	}
	return nil
}

// commit copies the vetted document into the allocated slot. It runs with
// the store lock held.
func (c *addCheck) commit() (*model.VFConfig, error) {
	d := c.doc
	link, ok := model.ParseLinkMode(d.LinkStatus)
	if !ok {
		util.WithVF(d.PCIID, d.VFID).Warnf("link_status not recognised in config: %s; defaulting to auto", d.LinkStatus)
	}
	name := d.Name
	if name == "" {
		name = "missing"
	}

	vf := model.NewFreeSlot()
	vf.Num = d.VFID
	vf.Owner = d.Owner
	vf.Name = name
	vf.MACAntiSpoof = d.MACAntiSpoof
	vf.VLANAntiSpoof = d.VLANAntiSpoof
	vf.AllowUntagged = d.AllowUntagged
	vf.AllowBcast = d.AllowBcast
	vf.AllowMcast = d.AllowMcast
	vf.AllowUnUcast = d.AllowUnUcast
	vf.StripSTag = d.StripSTag
	vf.StripCTag = d.StripCTag
	vf.InsertSTag = d.InsertSTag
	vf.InsertCTag = d.StripCTag
	vf.Link = link
	vf.Rate = d.Rate
	vf.MinRate = d.MinRate
	vf.StartCB = d.StartCB
	vf.StopCB = d.StopCB
	vf.VLANs = append([]int(nil), d.VLANs...)
	vf.QShares = c.shares

	if err := c.v.store.Commit(c.port, c.slot, vf); err != nil {
		return nil, util.NewInternalError("commit", err)
	}

	for _, m := range c.macs {
		if err := c.v.macs.Add(c.port, vf, m); err != nil {
			c.rollback(vf)
			return nil, util.NewInternalError("mac registration", err)
		}
	}
	if d.VMMAC != "" {
		if err := c.v.macs.PushDefault(c.port, vf, d.VMMAC); err != nil {
			c.rollback(vf)
			return nil, util.NewInternalError("vm_mac", err)
		}
	}
	return vf, nil
}

// rollback undoes a commit whose MAC registration failed after vetting.
func (c *addCheck) rollback(vf *model.VFConfig) {
	c.v.macs.Release(c.port, vf)
	if err := c.v.store.MarkDeleted(c.port, vf.Num); err == nil {
		_ = c.v.store.FreeSlot(c.port, vf.Num)
	}
}

func portNotFound(doc *vfdoc.Document) error {
	return &util.NotFoundError{Kind: "port", Name: doc.PCIID,
		Reason: fmt.Sprintf("%s: could not find port %s in the config", doc.Name, doc.PCIID)}
}
