//go:build !linux

package main

import (
	"context"

	"github.com/newtron-network/vfd/pkg/arbiter"
	"github.com/newtron-network/vfd/pkg/nic"
	"github.com/newtron-network/vfd/pkg/util"
)

// newDriver falls back to logging only; there is no PF driver off Linux.
func newDriver(noHarm bool, _ []string, _ func(context.Context, arbiter.Event) (arbiter.Result, error)) (nic.Driver, runner) {
	if !noHarm {
		util.Warnf("no NIC driver on this platform; running in no-harm mode")
	}
	return nic.NewNoHarm(), nil
}
