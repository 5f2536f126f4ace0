package parms

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/vfd/pkg/util"
)

func TestParse_EmptyGivesDefaults(t *testing.T) {
	p, err := Parse([]byte("  \n"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p)
}

func TestParse_File(t *testing.T) {
	p, err := Parse([]byte(`
fifo: /tmp/vfd.fifo
config_dir: /tmp/vfd
log_level: 2
cpu_alarm: 0.5
ready_timeout: 5s
enable_qos: true
enable_fc: true
redis:
  addr: 127.0.0.1:6379
pciids:
  - "0000:07:00.0"
  - id: "0000:07:00.1"
    name: east
    mtu: 1500
    enable_loopback: false
    vf_oversubscription: true
    num_tcs: 8
    num_vfs: 16
    tcs:
      - {id: 2, min_bw: 20, max_bw: 50, strict_priority: true}
`))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/vfd.fifo", p.Fifo)
	assert.Equal(t, 2, p.LogLevel)
	assert.Equal(t, 5*time.Second, p.ReadyTimeout)
	assert.Equal(t, 10*time.Second, p.Redis.Interval, "nested default kept")
	require.Len(t, p.PFs, 2)
	assert.Equal(t, "0000:07:00.0", p.PFs[0].ID)
	assert.Equal(t, 9000, p.PFs[0].MTU, "default mtu applied")
	assert.Equal(t, 1500, p.PFs[1].MTU)

	ports := p.Ports()
	require.Len(t, ports, 2)
	assert.Equal(t, "port_0", ports[0].Name)
	assert.True(t, ports[0].AllowLoopback)
	assert.Equal(t, 4, ports[0].NumTCs)
	assert.True(t, ports[0].FlowControl)

	east := ports[1]
	assert.Equal(t, "east", east.Name)
	assert.False(t, east.AllowLoopback)
	assert.True(t, east.AllowOversub)
	assert.Equal(t, 16, east.NumVFsConfigured)
	require.Len(t, east.TCs, 8)
	assert.Equal(t, 20, east.TCs[2].MinBW)
	assert.True(t, east.TCs[2].StrictPriority)
	assert.Equal(t, 100, east.TCs[3].MaxBW)
}

func TestParse_EnvOverride(t *testing.T) {
	t.Setenv("VFD_CONFIG_DIR", "/run/vfd/config")
	t.Setenv("VFD_REDIS_ADDR", "db:6379")
	t.Setenv("VFD_READY_TIMEOUT", "2s")

	p, err := Parse([]byte("config_dir: /tmp/ignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "/run/vfd/config", p.ConfigDir)
	assert.Equal(t, "db:6379", p.Redis.Addr)
	assert.Equal(t, 2*time.Second, p.ReadyTimeout)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"syntax", "fifo: [", "parsing parms"},
		{"no fifo", "fifo: ''", "fifo path is required"},
		{"negative level", "log_level: -1", "log_level"},
		{"duplicate pf", "pciids: ['0000:07:00.0', '0000:07:00.0']", "duplicate id"},
		{"bad tcs", "pciids: [{id: '0000:07:00.0', num_tcs: 6}]", "num_tcs"},
		{"too many vfs", "pciids: [{id: '0000:07:00.0', num_vfs: 500}]", "num_vfs"},
		{"bad mtu", "pciids: [{id: '0000:07:00.0', mtu: 20}]", "pciids[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Parse([]byte("fifo: ''\nconfig_dir: ''"))
	assert.ErrorIs(t, err, util.ErrValidationFailed)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseCPUAlarm(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"30%", 0.30, false},
		{" 5 % ", 0.05, false},
		{".30", 0.30, false},
		{"1.5", 1.5, false},
		{"", 0, true},
		{"abc", 0, true},
		{"x%", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseCPUAlarm(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}

func TestRuntime(t *testing.T) {
	defer util.SetVerbosity(0)

	p := Defaults()
	p.LogLevel = 2
	rt := NewRuntime(p)
	assert.InDelta(t, 0.90, rt.CPUAlarm(), 1e-9)
	assert.Equal(t, 2, rt.Verbosity())

	assert.InDelta(t, MinCPUAlarm, rt.SetCPUAlarm(0.01), 1e-9)
	assert.InDelta(t, MinCPUAlarm, rt.CPUAlarm(), 1e-9)
	assert.InDelta(t, 0.4, rt.SetCPUAlarm(0.4), 1e-9)
}

func TestWatch_Reload(t *testing.T) {
	defer util.SetVerbosity(0)

	path := filepath.Join(t.TempDir(), "vfd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: 0\ncpu_alarm: 0.9\n"), 0o644))
	rt := NewRuntime(Defaults())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, rt) }()

	// the watcher starts asynchronously; keep rewriting until it is seen
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("log_level: 3\ncpu_alarm: 0.25\n"), 0o644)
		return rt.Verbosity() == 3
	}, 5*time.Second, 50*time.Millisecond)
	assert.InDelta(t, 0.25, rt.CPUAlarm(), 1e-9)

	// a broken file leaves the current values alone
	require.NoError(t, os.WriteFile(path, []byte("log_level: ["), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3, rt.Verbosity())

	cancel()
	assert.NoError(t, <-done)
}
