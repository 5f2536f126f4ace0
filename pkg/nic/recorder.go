package nic

import (
	"strings"
	"sync"

	"github.com/newtron-network/vfd/pkg/model"
)

// Recorder is a Driver that remembers every call. It never touches
// hardware and is used by tests and by the daemon's dry runs.
type Recorder struct {
	mu       sync.Mutex
	calls    []string
	notReady map[string]bool
	fail     map[string]error
}

// NewRecorder returns a recorder on which every queue is ready.
func NewRecorder() *Recorder {
	return &Recorder{notReady: make(map[string]bool), fail: make(map[string]error)}
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// CallsWithPrefix returns the recorded calls whose text starts with p.
func (r *Recorder) CallsWithPrefix(p string) []string {
	var out []string
	for _, c := range r.Calls() {
		if strings.HasPrefix(c, p) {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// SetReady controls what QueueReady reports for port/vf.
func (r *Recorder) SetReady(port string, vf int, ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notReady[model.VFKey{PCIID: port, VF: vf}.String()] = !ready
}

// FailOn makes every call to op return err.
func (r *Recorder) FailOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[op] = err
}

func (r *Recorder) record(op string, args ...interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, describe(op, args...))
	return r.fail[op]
}

func (r *Recorder) SetVfVlan(port string, vlan int, vfMask uint64, on bool) error {
	return r.record("SetVfVlan", port, vlan, vfMask, on)
}

func (r *Recorder) SetVfMac(port, mac string, vf int, on bool) error {
	return r.record("SetVfMac", port, mac, vf, on)
}

func (r *Recorder) SetVfDefaultMac(port, mac string, vf int) error {
	return r.record("SetVfDefaultMac", port, mac, vf)
}

func (r *Recorder) SetSpoofing(port string, vf int, macOn, vlanOn bool) error {
	return r.record("SetSpoofing", port, vf, macOn, vlanOn)
}

func (r *Recorder) SetStripTag(port string, vf int, on bool) error {
	return r.record("SetStripTag", port, vf, on)
}

func (r *Recorder) SetInsertTag(port string, vf int, on bool) error {
	return r.record("SetInsertTag", port, vf, on)
}

func (r *Recorder) SetAllowBcast(port string, vf int, on bool) error {
	return r.record("SetAllowBcast", port, vf, on)
}

func (r *Recorder) SetAllowMcast(port string, vf int, on bool) error {
	return r.record("SetAllowMcast", port, vf, on)
}

func (r *Recorder) SetAllowUnknownUnicast(port string, vf int, on bool) error {
	return r.record("SetAllowUnknownUnicast", port, vf, on)
}

func (r *Recorder) SetAllowUntagged(port string, vf int, on bool) error {
	return r.record("SetAllowUntagged", port, vf, on)
}

func (r *Recorder) SetLinkState(port string, vf int, mode model.LinkMode) error {
	return r.record("SetLinkState", port, vf, mode)
}

func (r *Recorder) SetRateLimit(port string, vf int, rate float64, queueMask uint32) error {
	return r.record("SetRateLimit", port, vf, rate, queueMask)
}

func (r *Recorder) SetMinRate(port string, vf int, rate float64, queueMask uint32) error {
	return r.record("SetMinRate", port, vf, rate, queueMask)
}

func (r *Recorder) SetQosCredits(port string, mtu int, pct []int, tc8 bool) error {
	return r.record("SetQosCredits", port, mtu, pct, tc8)
}

func (r *Recorder) SetLoopback(port string, on bool) error {
	return r.record("SetLoopback", port, on)
}

func (r *Recorder) SetFlowControl(port string, on bool) error {
	return r.record("SetFlowControl", port, on)
}

func (r *Recorder) QueueReady(port string, vf int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.notReady[model.VFKey{PCIID: port, VF: vf}.String()]
}
