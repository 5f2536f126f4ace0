package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/alexflint/go-filemutex"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/newtron-network/vfd/pkg/admission"
	"github.com/newtron-network/vfd/pkg/arbiter"
	"github.com/newtron-network/vfd/pkg/audit"
	"github.com/newtron-network/vfd/pkg/configstore"
	"github.com/newtron-network/vfd/pkg/cpumon"
	"github.com/newtron-network/vfd/pkg/dispatch"
	"github.com/newtron-network/vfd/pkg/docstore"
	"github.com/newtron-network/vfd/pkg/hooks"
	"github.com/newtron-network/vfd/pkg/macreg"
	"github.com/newtron-network/vfd/pkg/metrics"
	"github.com/newtron-network/vfd/pkg/nic"
	"github.com/newtron-network/vfd/pkg/parms"
	"github.com/newtron-network/vfd/pkg/reconcile"
	"github.com/newtron-network/vfd/pkg/statedb"
	"github.com/newtron-network/vfd/pkg/transport"
	"github.com/newtron-network/vfd/pkg/util"
	"github.com/newtron-network/vfd/pkg/version"
)

// stopHookTimeout bounds the stop commands run at shutdown.
const stopHookTimeout = 30 * time.Second

type daemonOptions struct {
	ParmsPath  string
	NoHarm     bool
	Foreground bool
	Verbose    bool
}

// daemon is every long-lived component of a running vfd.
type daemon struct {
	opts  daemonOptions
	parms *parms.Parms
	rt    *parms.Runtime

	lock    *filemutex.FileMutex
	closers []io.Closer

	store    *configstore.Store
	pusher   *nic.Pusher
	queue    *reconcile.Queue
	arbiter  *arbiter.Arbiter
	disp     *dispatch.Dispatcher
	listener *transport.Listener
	watcher  runner

	// serving is set while the request loop runs; /healthz reports it.
	serving atomic.Bool
}

// runner is a component with a blocking Run.
type runner interface {
	Run(ctx context.Context) error
}

// newDaemon loads the parameters, takes the single-instance lock and
// builds the components. Nothing runs until Run.
func newDaemon(opts daemonOptions) (*daemon, error) {
	p, err := parms.Load(opts.ParmsPath)
	if err != nil {
		return nil, err
	}
	d := &daemon{opts: opts, parms: p}

	if err := d.setupLogging(); err != nil {
		return nil, err
	}
	if err := d.acquireLock(); err != nil {
		d.Close()
		return nil, err
	}
	if p.AuditLog != "" {
		al, err := audit.NewFileLogger(p.AuditLog, audit.RotationConfig{
			MaxSize:    10 * 1024 * 1024, // 10MB
			MaxBackups: 10,
			MaxAgeDays: p.LogKeep,
		})
		if err != nil {
			util.Warnf("Could not initialize audit logging: %v", err)
		} else {
			audit.SetDefaultLogger(al)
			d.closers = append(d.closers, al)
		}
	}

	noHarm := opts.NoHarm || !p.ForReal
	d.rt = parms.NewRuntime(p)
	// startup runs at the init level until the live documents are restored
	util.SetVerbosity(p.InitLogLevel)
	if opts.Verbose {
		util.SetVerbosity(5)
	}
	util.Infof("vfd %s starting: parms=%s ports=%d no_harm=%v", version.Info(), opts.ParmsPath, len(p.PFs), noHarm)

	d.store = configstore.New(p.Ports())
	macs := macreg.New()

	hookRunner := hooks.NewExec()
	hookRunner.Timeout = p.HookTimeout

	pfs := make([]string, 0, len(p.PFs))
	for _, pf := range p.PFs {
		pfs = append(pfs, pf.ID)
	}
	drv, watcher := newDriver(noHarm, pfs, func(ctx context.Context, ev arbiter.Event) (arbiter.Result, error) {
		return d.arbiter.Submit(ctx, ev)
	})
	d.watcher = watcher
	d.pusher = nic.NewPusher(drv, d.store, macs, hookRunner, p.EnableQOS)
	d.queue = reconcile.New(d.pusher, reconcile.WithReadyTimeout(p.ReadyTimeout))
	d.arbiter = arbiter.New(d.store, macs, d.queue, d.pusher)

	docs := docstore.New(afero.NewOsFs(), p.ConfigDir, p.DeleteKeep)
	if err := docs.Init(); err != nil {
		d.Close()
		return nil, err
	}
	d.disp = dispatch.New(dispatch.Config{
		Store:   d.store,
		Docs:    docs,
		Admit:   admission.New(d.store, macs),
		Queue:   d.queue,
		Runtime: d.rt,
		NoHarm:  noHarm,
	})

	d.listener, err = transport.Listen(p.Fifo)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("request fifo: %w", err)
	}
	return d, nil
}

func (d *daemon) setupLogging() error {
	switch d.parms.LogFormat {
	case "json":
		util.SetJSONFormat()
	case "nested":
		util.SetNestedFormat()
	}
	if d.opts.Foreground {
		return nil
	}
	c, err := util.SetLogFile(d.parms.LogDir, "vfd.log", d.parms.LogRotation())
	if err != nil {
		return fmt.Errorf("opening log in %s: %w", d.parms.LogDir, err)
	}
	d.closers = append(d.closers, c)
	return nil
}

func (d *daemon) acquireLock() error {
	if d.parms.LockFile == "" {
		return nil
	}
	m, err := filemutex.New(d.parms.LockFile)
	if err != nil {
		return fmt.Errorf("lock file %s: %w", d.parms.LockFile, err)
	}
	if err := m.TryLock(); err != nil {
		_ = m.Close()
		if errors.Is(err, filemutex.AlreadyLocked) {
			return fmt.Errorf("another vfd holds %s", d.parms.LockFile)
		}
		return fmt.Errorf("locking %s: %w", d.parms.LockFile, err)
	}
	d.lock = m
	return nil
}

// Run restores the live VFs and then runs every component until ctx is
// done or one of them fails.
func (d *daemon) Run(ctx context.Context) error {
	n, err := d.disp.Restore()
	if err != nil {
		util.Warnf("restore of live configuration failed: %v", err)
	}
	for _, pf := range d.parms.PFs {
		if err := d.pusher.ReassertPort(pf.ID); err != nil {
			util.WithPort(pf.ID).Warnf("unable to apply port settings: %v", err)
		}
	}
	d.rt.SetVerbosity(d.rt.Verbosity())
	if d.opts.Verbose {
		d.rt.SetVerbosity(5)
	}
	util.Infof("initialisation complete: %d vfs restored; listening on %s", n, d.listener.Path())

	g, ctx := errgroup.WithContext(ctx)

	reqs := make(chan dispatch.Request)
	g.Go(func() error { return d.listener.Serve(ctx, reqs) })
	g.Go(func() error {
		d.serving.Store(true)
		defer d.serving.Store(false)
		return d.disp.Run(ctx, reqs, transport.NewReplier())
	})
	g.Go(func() error { return d.queue.Run(ctx) })
	g.Go(func() error { return d.arbiter.Run(ctx) })
	if d.watcher != nil {
		g.Go(func() error { return d.watcher.Run(ctx) })
	}

	g.Go(func() error {
		if err := parms.Watch(ctx, d.opts.ParmsPath, d.rt); err != nil {
			util.Warnf("parameter file not watched: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		s, err := cpumon.NewProcSampler()
		if err != nil {
			util.Warnf("cpu monitor disabled: %v", err)
			return nil
		}
		return cpumon.New(s, d.rt, d.parms.CPUAlarmType).Run(ctx)
	})
	if d.parms.Redis.Addr != "" {
		g.Go(func() error { return d.publish(ctx) })
	}
	if d.parms.MetricsAddr != "" {
		g.Go(func() error { return metrics.NewServer(d.parms.MetricsAddr, d.health).Run(ctx) })
	}

	err = g.Wait()

	hookCtx, cancel := context.WithTimeout(context.Background(), stopHookTimeout)
	defer cancel()
	d.pusher.RunStopHooks(hookCtx)
	util.Infof("vfd stopped")
	return err
}

// publish mirrors the model into redis. A redis that never comes up costs
// the publishing, not the daemon.
func (d *daemon) publish(ctx context.Context) error {
	c, err := statedb.Dial(ctx, d.parms.Redis)
	if err != nil {
		util.WithComponent("statedb").Warnf("state publishing disabled: %v", err)
		return nil
	}
	defer c.Close()
	return statedb.NewPublisher(c, d.store, d.parms.Redis.Interval).Run(ctx)
}

func (d *daemon) health() error {
	if !d.serving.Load() {
		return errors.New("request loop not running")
	}
	return nil
}

// Close releases the lock and closes the log and audit files.
func (d *daemon) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i].Close()
	}
	d.closers = nil
	if d.lock != nil {
		_ = d.lock.Unlock()
		_ = d.lock.Close()
		_ = os.Remove(d.parms.LockFile)
		d.lock = nil
	}
}
