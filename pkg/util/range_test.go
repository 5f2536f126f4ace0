package util

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []int
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"single", "100", []int{100}, false},
		{"list", "300, 100,200", []int{100, 200, 300}, false},
		{"range", "10-13", []int{10, 11, 12, 13}, false},
		{"mixed", "1-3,5,7-9", []int{1, 2, 3, 5, 7, 8, 9}, false},
		{"overlap collapses", "5-7,6,7-8", []int{5, 6, 7, 8}, false},
		{"empty parts skipped", "1, ,3", []int{1, 3}, false},
		{"backwards", "9-3", nil, true},
		{"bad start", "x-3", nil, true},
		{"bad end", "1-abc", nil, true},
		{"not a number", "abc", nil, true},
		{"too wide", "1-4095", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.in, 64)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.want, got))
		})
	}
}

func TestFormatRange(t *testing.T) {
	tests := []struct {
		in   []int
		want string
	}{
		{nil, ""},
		{[]int{42}, "42"},
		{[]int{3, 1, 2}, "1-3"},
		{[]int{1, 2, 3, 5, 7, 8}, "1-3,5,7-8"},
		{[]int{200, 100, 100}, "100,200"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRange(tt.in), "%v", tt.in)
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	const in = "1-3,5,7-10,15"
	v, err := ParseRange(in, MaxVLANID)
	require.NoError(t, err)
	assert.Equal(t, in, FormatRange(v))
}

func TestValidateVLANID(t *testing.T) {
	for _, id := range []int{MinVLANID, 100, MaxVLANID} {
		assert.NoError(t, ValidateVLANID(id), "id %d", id)
	}
	for _, id := range []int{-1, 0, MaxVLANID + 1} {
		assert.Error(t, ValidateVLANID(id), "id %d", id)
	}
	assert.EqualError(t, ValidateVLANID(0), "invalid vlan id: 0")
}

func TestValidateMTU(t *testing.T) {
	for _, mtu := range []int{MinMTU, 1500, 9000, MaxMTU} {
		assert.NoError(t, ValidateMTU(mtu), "mtu %d", mtu)
	}
	for _, mtu := range []int{0, MinMTU - 1, MaxMTU + 1} {
		assert.Error(t, ValidateMTU(mtu), "mtu %d", mtu)
	}
}
