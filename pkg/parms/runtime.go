package parms

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/newtron-network/vfd/pkg/util"
)

// MinCPUAlarm is the lowest alarm threshold accepted. There is no upper
// bound so a large value turns the alarm off.
const MinCPUAlarm = 0.05

// Runtime holds the settings that requests and parameter reloads change
// while the daemon runs.
type Runtime struct {
	cpuAlarm  atomic.Uint64
	verbosity atomic.Int32
}

// NewRuntime seeds the run-time settings from p.
func NewRuntime(p *Parms) *Runtime {
	r := &Runtime{}
	r.SetCPUAlarm(p.CPUAlarm)
	r.SetVerbosity(p.LogLevel)
	return r
}

// CPUAlarm returns the alarm threshold as a fraction of one CPU.
func (r *Runtime) CPUAlarm() float64 {
	return math.Float64frombits(r.cpuAlarm.Load())
}

// SetCPUAlarm stores v, raised to MinCPUAlarm if lower, and returns the
// value stored.
func (r *Runtime) SetCPUAlarm(v float64) float64 {
	if v < MinCPUAlarm {
		v = MinCPUAlarm
	}
	r.cpuAlarm.Store(math.Float64bits(v))
	return v
}

// Verbosity returns the numeric log verbosity.
func (r *Runtime) Verbosity() int {
	return int(r.verbosity.Load())
}

// SetVerbosity records v and applies it to the process logger.
func (r *Runtime) SetVerbosity(v int) {
	r.verbosity.Store(int32(v))
	util.SetVerbosity(v)
}

// ParseCPUAlarm accepts a percentage ("30%") or a fraction (".30").
func ParseCPUAlarm(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("missing value")
	}
	if i := strings.IndexByte(s, '%'); i >= 0 {
		n, err := strconv.Atoi(strings.TrimSpace(s[:i]))
		if err != nil {
			return 0, fmt.Errorf("bad percentage %q", s)
		}
		return float64(n) / 100, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad value %q", s)
	}
	return f, nil
}
