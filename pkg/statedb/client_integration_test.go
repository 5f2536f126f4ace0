//go:build integration

package statedb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/vfd/internal/testutil"
	"github.com/newtron-network/vfd/pkg/parms"
)

const testDB = 15

func TestClient_Apply(t *testing.T) {
	rdb := testutil.Redis(t, testDB)
	testutil.Seed(t, rdb, map[string]map[string]map[string]string{
		VFTable: {"0000:07:00.0|9": {"name": "stale", "rate": "0.5"}},
	})

	ctx := context.Background()
	c, err := Dial(ctx, parms.Redis{Addr: testutil.RedisAddr(), DB: testDB})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Apply(ctx, []TableChange{
		{Table: PortTable, Key: "0000:07:00.0", Fields: map[string]string{"name": "east", "mtu": "9000"}},
		{Table: VFTable, Key: "0000:07:00.0|1", Fields: map[string]string{"name": "vm-1"}},
		{Table: VFTable, Key: "0000:07:00.0|9", Fields: map[string]string{"name": "fresh"}},
	}))

	port, err := c.Get(ctx, PortTable, "0000:07:00.0")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "east", "mtu": "9000"}, port)

	vf9, err := c.Get(ctx, VFTable, "0000:07:00.0|9")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "fresh"}, vf9, "entry replaced, not merged")

	require.NoError(t, c.Apply(ctx, []TableChange{{Table: VFTable, Key: "0000:07:00.0|1"}}))
	gone, err := c.Get(ctx, VFTable, "0000:07:00.0|1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	ks, err := c.Keys(ctx, VFTable)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"VFD_VF|0000:07:00.0|9"}, ks)
}
