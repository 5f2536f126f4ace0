package statedb

import (
	"context"
	"maps"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/qshare"
	"github.com/newtron-network/vfd/pkg/util"
)

// Writer applies a batch of entry changes.
type Writer interface {
	Apply(ctx context.Context, changes []TableChange) error
}

// Snapshotter supplies a consistent copy of the port model.
type Snapshotter interface {
	Snapshot() []*model.PortConfig
}

// Publisher mirrors the port model into redis, writing only entries that
// changed since the last successful publish.
type Publisher struct {
	w        Writer
	store    Snapshotter
	interval time.Duration
	last     map[string]TableChange
}

// NewPublisher creates a publisher that runs every interval.
func NewPublisher(w Writer, store Snapshotter, interval time.Duration) *Publisher {
	return &Publisher{w: w, store: store, interval: interval, last: make(map[string]TableChange)}
}

// Run publishes until ctx is done. Failures are logged and retried on the
// next tick.
func (p *Publisher) Run(ctx context.Context) error {
	log := util.WithComponent("statedb")
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		if _, err := p.Publish(ctx); err != nil && ctx.Err() == nil {
			log.Warnf("state publish failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Publish writes the difference between the model and the last publish.
// It returns the number of entries written or deleted.
func (p *Publisher) Publish(ctx context.Context) (int, error) {
	current := make(map[string]TableChange)
	for _, c := range Entries(p.store.Snapshot()) {
		current[c.RedisKey()] = c
	}

	var changes []TableChange
	for k, c := range current {
		if prev, ok := p.last[k]; !ok || !maps.Equal(prev.Fields, c.Fields) {
			changes = append(changes, c)
		}
	}
	for k, prev := range p.last {
		if _, ok := current[k]; !ok {
			changes = append(changes, TableChange{Table: prev.Table, Key: prev.Key})
		}
	}
	if len(changes) == 0 {
		return 0, nil
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].RedisKey() < changes[j].RedisKey() })

	if err := p.w.Apply(ctx, changes); err != nil {
		return 0, err
	}
	p.last = current
	util.WithComponent("statedb").Debugf("published %d state entries", len(changes))
	return len(changes), nil
}

// Entries renders the port and VF entries for ports.
func Entries(ports []*model.PortConfig) []TableChange {
	var out []TableChange
	for _, port := range ports {
		active := port.ActiveVFs()
		out = append(out, TableChange{
			Table: PortTable,
			Key:   port.PCIID,
			Fields: map[string]string{
				"name":             port.Name,
				"mtu":              strconv.Itoa(port.MTU),
				"num_tcs":          strconv.Itoa(port.NumTCs),
				"num_vfs":          strconv.Itoa(port.NumVFsConfigured),
				"active_vfs":       strconv.Itoa(len(active)),
				"vlans":            strconv.Itoa(port.TotalVLANs()),
				"macs":             strconv.Itoa(port.TotalMACs()),
				"min_rate_total":   formatRate(port.TotalMinRate()),
				"loopback":         strconv.FormatBool(port.AllowLoopback),
				"oversubscription": strconv.FormatBool(port.AllowOversub),
			},
		})

		shares := qshare.Normalize(port)
		for _, vf := range port.ConfiguredVFs() {
			pct := lo.Times(shares.NumTCs, func(tc int) string { return strconv.Itoa(shares.Share(vf.Num, tc)) })
			out = append(out, TableChange{
				Table: VFTable,
				Key:   port.PCIID + "|" + strconv.Itoa(vf.Num),
				Fields: map[string]string{
					"name":        vf.Name,
					"owner":       strconv.Itoa(vf.Owner),
					"state":       vf.LastUpdated.String(),
					"started":     strconv.FormatBool(vf.Started),
					"vlans":       strings.Join(lo.Map(vf.VLANs, func(v, _ int) string { return strconv.Itoa(v) }), ","),
					"default_mac": vf.DefaultMAC(),
					"macs":        strings.Join(vf.Whitelist(), ","),
					"rate":        formatRate(vf.Rate),
					"min_rate":    formatRate(vf.MinRate),
					"link":        vf.Link.String(),
					"shares":      strings.Join(pct, ","),
				},
			})
		}
	}
	return out
}

func formatRate(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}
