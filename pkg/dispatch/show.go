package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/newtron-network/vfd/pkg/cli"
	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/qshare"
	"github.com/newtron-network/vfd/pkg/util"
)

const allPorts = -1

func (d *Dispatcher) show(req Request) Response {
	rid := req.RequestID
	if d.noHarm {
		return fail(rid, "VFD running in 'no harm' (-n) mode; no stats available.")
	}
	res := strings.TrimSpace(req.Resource)
	if res == "" {
		return fail(rid, "unable to generate stats: internal mishap: null resource")
	}
	ports := d.store.Snapshot()

	switch res[0] {
	case 'a':
		if res != "all" {
			return fail(rid, "unrecognised show suboption")
		}
		return ok(rid, renderPorts(ports, false, allPorts)...)
	case 'p':
		if res != "pfs" {
			return fail(rid, "unrecognised show suboption")
		}
		return ok(rid, renderPorts(ports, true, allPorts)...)
	case 'e':
		if !strings.HasPrefix(res, "ex") {
			return fail(rid, "unrecognised show suboption")
		}
		return ok(rid, renderShares(ports)...)
	}

	if res[0] >= '0' && res[0] <= '9' {
		idx, err := strconv.Atoi(res)
		if err != nil || idx >= len(ports) {
			return fail(rid, "unable to generate pf stats")
		}
		return ok(rid, renderPorts(ports, false, idx)...)
	}
	util.WithComponent("dispatch").Debugf("show: unknown target supplied: %s", res)
	return fail(rid, "unable to generate stats: unnown target supplied (not one of all, pfs, extended or pf-number)")
}

// renderPorts draws the PF table and, unless pfOnly, one VF table per PF.
// idx limits the output to one PF.
func renderPorts(ports []*model.PortConfig, pfOnly bool, idx int) []string {
	var buf bytes.Buffer
	pfs := cli.NewTableTo(&buf, "PF", "PCIID", "NAME", "MTU", "TCS", "VFS", "ACTIVE", "VLANS", "MACS", "LOOPBACK", "OVERSUB")
	for i, p := range ports {
		if idx != allPorts && i != idx {
			continue
		}
		pfs.Row(strconv.Itoa(i), p.PCIID, p.Name, strconv.Itoa(p.MTU), strconv.Itoa(p.NumTCs),
			strconv.Itoa(p.NumVFsConfigured), strconv.Itoa(len(p.ActiveVFs())),
			strconv.Itoa(p.TotalVLANs()), strconv.Itoa(p.TotalMACs()),
			onOff(p.AllowLoopback), onOff(p.AllowOversub))
	}
	pfs.Flush()

	if !pfOnly {
		for i, p := range ports {
			if idx != allPorts && i != idx {
				continue
			}
			vfs := p.ConfiguredVFs()
			if len(vfs) == 0 {
				continue
			}
			sort.Slice(vfs, func(a, b int) bool { return vfs[a].Num < vfs[b].Num })

			buf.WriteString("\n")
			t := cli.NewTableTo(&buf, "PF/VF", "NAME", "OWNER", "STATE", "VLANS", "MACS", "RATE", "MIN_RATE", "LINK")
			for _, vf := range vfs {
				t.Row(fmt.Sprintf("%d/%d", i, vf.Num), vf.Name, strconv.Itoa(vf.Owner), vf.LastUpdated.String(),
					util.FormatRange(vf.VLANs), strings.Join(vf.ActiveMACs(), ","),
					rate(vf.Rate), rate(vf.MinRate), vf.Link.String())
			}
			t.Flush()
		}
	}
	return lines(buf.String())
}

// renderShares draws the normalized per-class share table of every PF.
func renderShares(ports []*model.PortConfig) []string {
	var buf bytes.Buffer
	for i, p := range ports {
		fmt.Fprintf(&buf, "port %d: %s\n", i, p.PCIID)
		tbl := qshare.Normalize(p)
		headers := append([]string{"VF"}, lo.Times(tbl.NumTCs, func(tc int) string { return fmt.Sprintf("TC%d", tc) })...)
		t := cli.NewTableTo(&buf, headers...).WithPrefix("  ")
		for _, vf := range p.ActiveVFs() {
			t.Row(append([]string{strconv.Itoa(vf.Num)}, lo.Times(tbl.NumTCs, func(tc int) string {
				return strconv.Itoa(tbl.Share(vf.Num, tc))
			})...)...)
		}
		if t.Len() > 0 {
			t.Row(append([]string{"sum"}, lo.Times(tbl.NumTCs, func(tc int) string {
				return strconv.Itoa(tbl.Sum(tc))
			})...)...)
		}
		t.Flush()
	}
	return lines(buf.String())
}

// dump writes the full model to the log, one entry per port.
func dump(ports []*model.PortConfig) {
	log := util.WithComponent("dump")
	for _, p := range ports {
		b, err := json.Marshal(p)
		if err != nil {
			log.WithField("pciid", p.PCIID).Errorf("unable to encode port: %v", err)
			continue
		}
		log.WithField("pciid", p.PCIID).Warn(string(b))
	}
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func rate(r float64) string {
	if r == 0 {
		return "-"
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}
