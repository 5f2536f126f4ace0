// Package parms loads the daemon parameter file and keeps the settings
// that may change while the daemon runs.
package parms

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/newtron-network/vfd/pkg/model"
	"github.com/newtron-network/vfd/pkg/util"
)

// DefaultPath is where the daemon looks for its parameters.
const DefaultPath = "/etc/vfd/vfd.yaml"

// EnvPrefix prefixes every environment override, e.g. VFD_CONFIG_DIR or
// VFD_REDIS_SSH_KEY_FILE.
const EnvPrefix = "VFD"

// Parms is the daemon parameter file.
type Parms struct {
	Fifo       string `yaml:"fifo" split_words:"true"`
	ConfigDir  string `yaml:"config_dir" split_words:"true"`
	DeleteKeep bool   `yaml:"delete_keep" split_words:"true"`
	LockFile   string `yaml:"pid_fname" split_words:"true"`

	LogDir       string `yaml:"log_dir" split_words:"true"`
	LogLevel     int    `yaml:"log_level" split_words:"true"`
	InitLogLevel int    `yaml:"init_log_level" split_words:"true"`
	LogKeep      int    `yaml:"log_keep" split_words:"true"`
	LogFormat    string `yaml:"log_format" split_words:"true"`
	AuditLog     string `yaml:"audit_log" split_words:"true"`

	CPUAlarm     float64       `yaml:"cpu_alarm" split_words:"true"`
	CPUAlarmType string        `yaml:"cpu_alarm_type" split_words:"true"`
	ReadyTimeout time.Duration `yaml:"ready_timeout" split_words:"true"`
	HookTimeout  time.Duration `yaml:"hook_timeout" split_words:"true"`
	ForReal      bool          `yaml:"forreal" split_words:"true"`
	EnableQOS    bool          `yaml:"enable_qos" split_words:"true"`
	EnableFC     bool          `yaml:"enable_fc" split_words:"true"`
	MetricsAddr  string        `yaml:"metrics_addr" split_words:"true"`
	DefaultMTU   int           `yaml:"default_mtu" split_words:"true"`

	Redis Redis `yaml:"redis" split_words:"true"`

	PFs []PF `yaml:"pciids" ignored:"true"`
}

// Redis configures state publishing. An empty Addr disables it.
type Redis struct {
	Addr     string        `yaml:"addr" split_words:"true"`
	Password string        `yaml:"password" split_words:"true"`
	DB       int           `yaml:"db" split_words:"true"`
	Interval time.Duration `yaml:"interval" split_words:"true"`
	SSH      SSH           `yaml:"ssh" split_words:"true"`
}

// SSH reaches redis through a tunnel when Host is set.
type SSH struct {
	Host    string `yaml:"host" split_words:"true"`
	Port    int    `yaml:"port" split_words:"true"`
	User    string `yaml:"user" split_words:"true"`
	KeyFile string `yaml:"key_file" split_words:"true"`
	// KnownHosts verifies the host key; without it any key is accepted.
	KnownHosts string `yaml:"known_hosts" split_words:"true"`
}

// PF is one physical port the daemon manages.
type PF struct {
	ID             string           `yaml:"id"`
	Name           string           `yaml:"name"`
	MTU            int              `yaml:"mtu"`
	EnableLoopback *bool            `yaml:"enable_loopback"`
	AllowOversub   bool             `yaml:"vf_oversubscription"`
	NumTCs         int              `yaml:"num_tcs"`
	NumVFs         int              `yaml:"num_vfs"`
	TCs            []model.TCConfig `yaml:"tcs"`
}

// UnmarshalYAML accepts either a bare PCI id string or a full mapping.
func (p *PF) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		p.ID = n.Value
		return nil
	}
	type plain PF
	return n.Decode((*plain)(p))
}

// Defaults returns the parameters used for anything the file leaves out.
func Defaults() *Parms {
	return &Parms{
		Fifo:         "/var/lib/vfd/request",
		ConfigDir:    "/var/lib/vfd/config",
		LockFile:     "/var/run/vfd.pid",
		LogDir:       "/var/log/vfd",
		InitLogLevel: 1,
		LogKeep:      30,
		LogFormat:    "text",
		CPUAlarm:     0.90,
		CPUAlarmType: "WRN",
		ReadyTimeout: 30 * time.Second,
		HookTimeout:  30 * time.Second,
		ForReal:      true,
		MetricsAddr:  ":9713",
		DefaultMTU:   9000,
		Redis:        Redis{Interval: 10 * time.Second, SSH: SSH{Port: 22}},
	}
}

// Load reads path, applies environment overrides and validates the result.
// An empty file yields the defaults.
func Load(path string) (*Parms, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading parms %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes data the way Load does.
func Parse(data []byte) (*Parms, error) {
	p := Defaults()
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("parsing parms: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, p); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	for i := range p.PFs {
		if p.PFs[i].MTU == 0 {
			p.PFs[i].MTU = p.DefaultMTU
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the parameters for values the daemon cannot run with.
func (p *Parms) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(p.Fifo != "", "fifo path is required")
	v.Add(p.ConfigDir != "", "config_dir is required")
	v.Add(p.LogLevel >= 0, "log_level must not be negative")
	v.Add(p.ReadyTimeout > 0, "ready_timeout must be positive")

	seen := make(map[string]bool)
	for i, pf := range p.PFs {
		if pf.ID == "" {
			v.AddErrorf("pciids[%d]: id is required", i)
			continue
		}
		if seen[pf.ID] {
			v.AddErrorf("pciids[%d]: duplicate id %s", i, pf.ID)
		}
		seen[pf.ID] = true
		if err := util.ValidateMTU(pf.MTU); err != nil {
			v.AddErrorf("pciids[%d]: %v", i, err)
		}
		v.Add(pf.NumTCs == 0 || pf.NumTCs == 4 || pf.NumTCs == 8, fmt.Sprintf("pciids[%d]: num_tcs must be 4 or 8", i))
		v.Add(pf.NumVFs >= 0 && pf.NumVFs <= model.MaxVFs, fmt.Sprintf("pciids[%d]: num_vfs must be between 0 and %d", i, model.MaxVFs))
		v.Add(len(pf.TCs) <= model.MaxTCs, fmt.Sprintf("pciids[%d]: at most %d tcs", i, model.MaxTCs))
	}
	return v.Build()
}

// Ports builds the port model from the PF list. Loopback defaults to on;
// flow control follows enable_fc on every port.
func (p *Parms) Ports() []*model.PortConfig {
	ports := make([]*model.PortConfig, 0, len(p.PFs))
	for i, pf := range p.PFs {
		name := pf.Name
		if name == "" {
			name = fmt.Sprintf("port_%d", i)
		}
		port := model.NewPort(pf.ID, name, pf.MTU, pf.NumTCs, pf.NumVFs)
		port.AllowLoopback = pf.EnableLoopback == nil || *pf.EnableLoopback
		port.AllowOversub = pf.AllowOversub
		port.FlowControl = p.EnableFC
		for _, tc := range pf.TCs {
			if tc.ID >= 0 && tc.ID < len(port.TCs) {
				port.TCs[tc.ID] = tc
			}
		}
		ports = append(ports, port)
	}
	return ports
}

// LogRotation is the rotation applied to the daemon log file.
func (p *Parms) LogRotation() util.FileRotation {
	return util.FileRotation{MaxSizeMB: 50, MaxBackups: 10, MaxAgeDays: p.LogKeep, Compress: true}
}
