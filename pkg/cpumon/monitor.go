// Package cpumon samples the daemon's own CPU use and writes an alarm to
// the log while it stays above the run-time threshold.
package cpumon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/procfs"
	"github.com/sirupsen/logrus"

	"github.com/newtron-network/vfd/pkg/metrics"
	"github.com/newtron-network/vfd/pkg/util"
)

const (
	// DefaultInterval is the time between samples.
	DefaultInterval = 5 * time.Second
	// DefaultWarmup skips startup, when the restore of live documents can
	// burn CPU legitimately.
	DefaultWarmup = 30 * time.Second
	// repeatEvery is how many consecutive samples over the threshold pass
	// before a steady alarm is repeated.
	repeatEvery = 6
)

// Sampler returns the process CPU time consumed so far, in seconds.
type Sampler interface {
	CPUTime() (float64, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func() (float64, error)

// CPUTime implements Sampler.
func (f SamplerFunc) CPUTime() (float64, error) { return f() }

// procSampler reads utime+stime from /proc/self/stat.
type procSampler struct {
	proc procfs.Proc
}

// NewProcSampler returns a sampler for the running process.
func NewProcSampler() (Sampler, error) {
	p, err := procfs.Self()
	if err != nil {
		return nil, fmt.Errorf("opening /proc/self: %w", err)
	}
	return procSampler{proc: p}, nil
}

func (s procSampler) CPUTime() (float64, error) {
	st, err := s.proc.Stat()
	if err != nil {
		return 0, err
	}
	return st.CPUTime(), nil
}

// Threshold supplies the alarm level as a fraction of one CPU. It is read
// on every sample so cpu_alarm requests apply at once.
type Threshold interface {
	CPUAlarm() float64
}

// Monitor compares successive samples against the threshold.
type Monitor struct {
	sampler   Sampler
	threshold Threshold
	alarmType string
	interval  time.Duration
	warmup    time.Duration
	now       func() time.Time

	lastCPU  float64
	lastWall time.Time
	lastPct  float64
	printed  int
}

// New creates a monitor. alarmType prefixes the alarm message (WRN, ERR,
// CRI ...); CRI and ERR alarms are logged at error level.
func New(s Sampler, th Threshold, alarmType string) *Monitor {
	return &Monitor{
		sampler:   s,
		threshold: th,
		alarmType: strings.ToUpper(strings.TrimSpace(alarmType)),
		interval:  DefaultInterval,
		warmup:    DefaultWarmup,
		now:       time.Now,
	}
}

// WithInterval overrides the sample interval and warmup.
func (m *Monitor) WithInterval(interval, warmup time.Duration) *Monitor {
	m.interval = interval
	m.warmup = warmup
	return m
}

// Sample takes one reading. It returns the utilization since the previous
// reading and whether an alarm line was written. The first reading only
// primes the monitor.
func (m *Monitor) Sample() (float64, bool, error) {
	cpu, err := m.sampler.CPUTime()
	if err != nil {
		return 0, false, err
	}
	wall := m.now()
	if m.lastWall.IsZero() {
		m.lastCPU, m.lastWall = cpu, wall
		return 0, false, nil
	}
	elapsed := wall.Sub(m.lastWall).Seconds()
	if elapsed <= 0 {
		return m.lastPct, false, nil
	}
	pct := (cpu - m.lastCPU) / elapsed
	metrics.CPUUtilization.Set(pct)

	alarmed := false
	if pct > m.threshold.CPUAlarm() {
		// still climbing, or quiet for a while: say it again
		if pct > m.lastPct || m.printed == 0 {
			m.alarm(pct)
			alarmed = true
		}
		m.printed++
		if m.printed > repeatEvery {
			m.printed = 0
		}
	}

	m.lastCPU, m.lastWall, m.lastPct = cpu, wall, pct
	return pct, alarmed, nil
}

func (m *Monitor) alarm(pct float64) {
	level := logrus.WarnLevel
	if m.alarmType == "ERR" || m.alarmType == "CRI" {
		level = logrus.ErrorLevel
	}
	util.WithComponent("cpumon").Logf(level, "%s High CPU utilization: %0.2f%%", m.alarmType, pct*100)
}

// Run samples every interval after the warmup until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(m.warmup):
	}
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		if _, _, err := m.Sample(); err != nil {
			util.WithComponent("cpumon").Debugf("cpu sample failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
