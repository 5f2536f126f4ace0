//go:build linux

package main

import (
	"context"

	"github.com/newtron-network/vfd/pkg/arbiter"
	"github.com/newtron-network/vfd/pkg/nic"
)

// newDriver picks the NIC driver. Kernel PFs also get a watcher feeding
// guest address changes to submit.
func newDriver(noHarm bool, pfs []string, submit func(context.Context, arbiter.Event) (arbiter.Result, error)) (nic.Driver, runner) {
	if noHarm {
		return nic.NewNoHarm(), nil
	}
	drv := nic.NewNetlink()
	return drv, nic.NewWatcher(drv, pfs, submit)
}
