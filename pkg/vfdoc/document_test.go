package vfdoc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/vfd/pkg/model"
)

const full = `{
	"name": "VM1/eth1",
	"pciid": "0000:07:00.0",
	"vfid": 3,
	"strip_stag": true,
	"allow_bcast": false,
	"link_status": "on",
	"rate": 0.5,
	"min_rate": 0.1,
	"start_cb": "/usr/bin/start",
	"vlans": [ 10 ],
	"macs": [ "02:00:00:00:00:01", "02:00:00:00:00:02" ],
	"queues": [
		{ "priority": 0, "share": "10%" },
		{ "priority": 2, "share": 30 }
	]
}`

func TestDecode_Full(t *testing.T) {
	d, err := Decode(strings.NewReader(full))
	require.NoError(t, err)

	assert.Equal(t, "VM1/eth1", d.Name)
	assert.Equal(t, "0000:07:00.0", d.PCIID)
	assert.Equal(t, 3, d.VFID)
	assert.True(t, d.StripSTag)
	assert.True(t, d.InsertSTag, "insert follows strip")
	assert.False(t, d.AllowBcast)
	assert.True(t, d.AllowMcast)
	assert.Equal(t, "on", d.LinkStatus)
	assert.Equal(t, []int{10}, d.VLANs)
	assert.Len(t, d.MACs, 2)

	qs, err := d.QShares()
	require.NoError(t, err)
	assert.Equal(t, [model.MaxTCs]int{10, 0, 30}, qs)
	assert.Empty(t, d.Problems())
}

func TestDecode_Defaults(t *testing.T) {
	d, err := DecodeBytes([]byte(`{"pciid": "0000:07:00.0"}`))
	require.NoError(t, err)

	assert.Equal(t, -1, d.VFID)
	assert.True(t, d.MACAntiSpoof)
	assert.True(t, d.VLANAntiSpoof)
	assert.False(t, d.AllowUntagged)
	assert.True(t, d.AllowBcast)
	assert.True(t, d.AllowMcast)
	assert.True(t, d.AllowUnUcast)
	assert.Equal(t, "auto", d.LinkStatus)
	assert.Contains(t, d.Problems(), "vfid is missing or negative")
}

func TestDecode_SpoofOverride(t *testing.T) {
	d, err := DecodeBytes([]byte(`{"mac_anti_spoof": false, "vlan_anti_spoof": false}`))
	require.NoError(t, err)
	assert.False(t, d.MACAntiSpoof)
	assert.False(t, d.VLANAntiSpoof)
}

func TestDecode_SingleMACField(t *testing.T) {
	d, err := DecodeBytes([]byte(`{"mac": "02:00:00:00:00:07"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"02:00:00:00:00:07"}, d.MACs)
}

func TestDecode_BadVLANElement(t *testing.T) {
	d, err := DecodeBytes([]byte(`{"vlans": [10, "eleven", 12.5]}`))
	require.NoError(t, err)
	assert.Equal(t, []int{10, -1, -1}, d.VLANs)
}

func TestDecode_VLANRanges(t *testing.T) {
	d, err := DecodeBytes([]byte(`{"vlans": ["100-102", 7, "200,201", "9-1", "1-4095"]}`))
	require.NoError(t, err)
	assert.Equal(t, []int{100, 101, 102, 7, 200, 201, -1, -1}, d.VLANs)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "   "},
		{"not json", "{name"},
		{"vlans not array", `{"vlans": 10}`},
		{"bad share", `{"queues": [{"priority": 0, "share": "lots"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBytes([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestQShares_Range(t *testing.T) {
	d := &Document{Queues: []Queue{{Priority: 8, Share: 10}}}
	_, err := d.QShares()
	assert.Error(t, err)

	d = &Document{Queues: []Queue{{Priority: 1, Share: 101}}}
	_, err = d.QShares()
	assert.Error(t, err)
}

func TestProblems_LinkStatus(t *testing.T) {
	d := &Document{Name: "x", PCIID: "p", VFID: 1, LinkStatus: "sideways"}
	assert.Len(t, d.Problems(), 1)
}
