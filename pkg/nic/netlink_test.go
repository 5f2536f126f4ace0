//go:build linux

package nic

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
)

func TestNetlink_LinkSpeed(t *testing.T) {
	fs := afero.NewMemMapFs()
	n := newNetlink(fs)
	l := &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: "ens1f0"}}

	_, err := n.linkSpeed(l)
	assert.Error(t, err, "missing speed file")

	require.NoError(t, afero.WriteFile(fs, "/sys/class/net/ens1f0/speed", []byte("25000\n"), 0o444))
	speed, err := n.linkSpeed(l)
	require.NoError(t, err)
	assert.Equal(t, 25000, speed)

	require.NoError(t, afero.WriteFile(fs, "/sys/class/net/ens1f0/speed", []byte("-1\n"), 0o444))
	_, err = n.linkSpeed(l)
	assert.Error(t, err, "link down reports -1")
}

func TestNetlink_Unsupported(t *testing.T) {
	n := newNetlink(afero.NewMemMapFs())
	assert.ErrorIs(t, n.SetVfMac("p", "02:00:00:00:00:01", 1, true), ErrUnsupported)
	assert.ErrorIs(t, n.SetQosCredits("p", 9000, nil, false), ErrUnsupported)
	assert.ErrorIs(t, n.SetStripTag("p", 1, true), ErrUnsupported)
}
