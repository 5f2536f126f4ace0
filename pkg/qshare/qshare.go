// Package qshare turns the per-VF traffic class shares configured on a
// port into percentages that sum to exactly 100 for each class.
package qshare

import (
	"github.com/samber/lo"

	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/util"
)

// Table is the normalized share of every VF, grouped by VF:
//
//	VF0-TC0 | VF0-TC1 | ... | VF0-TCn | VF1-TC0 | ...
//
// Pct is indexed by vfid*NumTCs+tc. VFs that are not active read as 0.
type Table struct {
	NumTCs int
	Pct    []int
}

// Share returns the normalized percentage of tc for vfid.
func (t Table) Share(vfid, tc int) int {
	i := vfid*t.NumTCs + tc
	if vfid < 0 || tc < 0 || tc >= t.NumTCs || i >= len(t.Pct) {
		return 0
	}
	return t.Pct[i]
}

// Class returns the percentage of tc for vfids 0..n-1.
func (t Table) Class(tc int) []int {
	if t.NumTCs == 0 {
		return nil
	}
	n := len(t.Pct) / t.NumTCs
	out := make([]int, n)
	for v := 0; v < n; v++ {
		out[v] = t.Share(v, tc)
	}
	return out
}

// Sum returns the total of one class across every VF.
func (t Table) Sum(tc int) int {
	return lo.Sum(t.Class(tc))
}

// Normalize computes the share table for port. It does not modify port.
//
// For each class the configured shares of the active VFs are scaled by
// 100/sum and truncated; the rounding loss is then credited one point at a
// time to VFs in slot order. A class already summing to 100 is copied
// unchanged. A class whose shares are all zero is split evenly.
func Normalize(port *model.PortConfig) Table {
	ntcs := port.NumTCs
	active := port.ActiveVFs()

	maxID := lo.Reduce(active, func(m int, vf *model.VFConfig, _ int) int {
		return max(m, vf.Num)
	}, -1)
	t := Table{NumTCs: ntcs, Pct: make([]int, (maxID+1)*ntcs)}
	if len(active) == 0 {
		return t
	}

	log := util.WithPort(port.PCIID)
	for tc := 0; tc < ntcs; tc++ {
		sum := lo.SumBy(active, func(vf *model.VFConfig) int { return vf.QShares[tc] })

		switch {
		case sum == 100:
			for _, vf := range active {
				t.Pct[vf.Num*ntcs+tc] = vf.QShares[tc]
			}
			continue

		case sum == 0:
			log.Tracef("normalise qshare: tc=%d has no shares, splitting evenly", tc)
			for _, vf := range active {
				t.Pct[vf.Num*ntcs+tc] = 100 / len(active)
			}

		default:
			log.Tracef("normalise qshare: tc=%d factor=%.2f sum=%d", tc, 100.0/float64(sum), sum)
			for _, vf := range active {
				t.Pct[vf.Num*ntcs+tc] = vf.QShares[tc] * 100 / sum
			}
		}

		got := lo.SumBy(active, func(vf *model.VFConfig) int { return t.Pct[vf.Num*ntcs+tc] })
		for got < 100 {
			for _, vf := range active {
				if got >= 100 {
					break
				}
				t.Pct[vf.Num*ntcs+tc]++
				got++
			}
		}
	}

	return t
}

// ClassSums returns the configured share total of each class across the
// active VFs of port. Classes the port does not have read as 0.
func ClassSums(port *model.PortConfig) [model.MaxTCs]int {
	var sums [model.MaxTCs]int
	ntcs := min(port.NumTCs, model.MaxTCs)
	for _, vf := range port.ActiveVFs() {
		for tc := 0; tc < ntcs; tc++ {
			sums[tc] += vf.QShares[tc]
		}
	}
	return sums
}

// Oversubscribed returns the classes for which adding req to the active
// shares of port would take the total over 100. Only the port's own
// classes are considered.
func Oversubscribed(port *model.PortConfig, req [model.MaxTCs]int) []int {
	sums := ClassSums(port)
	var over []int
	for tc := 0; tc < min(port.NumTCs, model.MaxTCs); tc++ {
		if sums[tc]+req[tc] > 100 {
			util.WithPort(port.PCIID).Debugf("traffic class percentage would exceed limit: tc=%d current=%d requested=%d", tc, sums[tc], req[tc])
			over = append(over, tc)
		}
	}
	return over
}

// SpreadExceeded returns the classes for which the ratio between the
// largest share and the smallest nonzero share, counting req alongside the
// active VFs of port, would exceed the spread limit. Only the port's own
// classes are considered.
func SpreadExceeded(port *model.PortConfig, req [model.MaxTCs]int) []int {
	var bad []int
	active := port.ActiveVFs()
	for tc := 0; tc < min(port.NumTCs, model.MaxTCs); tc++ {
		shares := append(lo.Map(active, func(vf *model.VFConfig, _ int) int { return vf.QShares[tc] }), req[tc])
		nonzero := lo.Filter(shares, func(s int, _ int) bool { return s > 0 })
		if len(nonzero) == 0 {
			continue
		}
		low, high := lo.Min(nonzero), lo.Max(nonzero)
		if high/low > model.SpreadLimit {
			util.WithPort(port.PCIID).Debugf("traffic class spread would exceed %dx for tc %d min=%d max=%d", model.SpreadLimit, tc, low, high)
			bad = append(bad, tc)
		}
	}
	return bad
}
