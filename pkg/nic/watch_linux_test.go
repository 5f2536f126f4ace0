//go:build linux

package nic

import (
	"context"
	"net"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/vishvananda/netlink"

	"github.com/newtron-network/vfd/pkg/arbiter"
)

func hw(s string) net.HardwareAddr {
	m, _ := net.ParseMAC(s)
	return m
}

func TestWatcher_ObserveSubmitsChangedMACs(t *testing.T) {
	var got []arbiter.Event
	w := NewWatcher(newNetlink(afero.NewMemMapFs()), nil, func(_ context.Context, ev arbiter.Event) (arbiter.Result, error) {
		got = append(got, ev)
		return arbiter.Result{Decision: arbiter.Proceed}, nil
	})
	const pf = "0000:07:00.0"

	// first sighting only primes
	w.observe(context.Background(), pf, []netlink.VfInfo{
		{ID: 0, Mac: hw("02:00:00:00:00:01")},
		{ID: 1, Mac: hw("00:00:00:00:00:00")},
	})
	assert.Empty(t, got)

	w.observe(context.Background(), pf, []netlink.VfInfo{
		{ID: 0, Mac: hw("02:00:00:00:00:01")},
		{ID: 1, Mac: hw("02:00:00:00:00:22")},
	})
	if assert.Len(t, got, 1) {
		assert.Equal(t, arbiter.SetDefaultMac, got[0].Kind)
		assert.Equal(t, 1, got[0].VF)
		assert.Equal(t, pf, got[0].PCIID)
		assert.Equal(t, []byte{0x02, 0, 0, 0, 0, 0x22}, []byte(got[0].MAC))
	}

	// cleared back to zero is not a request
	w.observe(context.Background(), pf, []netlink.VfInfo{{ID: 1, Mac: hw("00:00:00:00:00:00")}})
	assert.Len(t, got, 1)
}
