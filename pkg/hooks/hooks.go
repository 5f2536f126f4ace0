// Package hooks runs the per-VF start and stop commands on behalf of the
// VF's owner.
package hooks

import (
	"context"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/edwarnicke/exechelper"
	"github.com/sirupsen/logrus"

	"github.com/newtron-network/vfd/pkg/util"
)

// DefaultTimeout bounds a single hook command.
const DefaultTimeout = 30 * time.Second

// Runner executes a hook command as uid.
type Runner interface {
	Run(ctx context.Context, uid int, cmd string) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, uid int, cmd string) error

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, uid int, cmd string) error { return f(ctx, uid, cmd) }

// Exec runs hooks as child processes. Output goes to the daemon log.
type Exec struct {
	Timeout time.Duration
	Stdout  io.Writer
	Stderr  io.Writer
}

// NewExec creates a runner that logs command output at debug level.
func NewExec() *Exec {
	w := util.WithComponent("hooks").WriterLevel(logrus.DebugLevel)
	return &Exec{Timeout: DefaultTimeout, Stdout: w, Stderr: w}
}

// Run implements Runner. The command switches to uid only when the daemon
// runs as root and uid differs from its own.
func (e *Exec) Run(ctx context.Context, uid int, cmd string) error {
	if util.HasStatementSeparator(cmd) {
		return util.NewValidationError("hook command contains invalid character: " + util.StatementSeparator)
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := []*exechelper.Option{
		exechelper.WithContext(ctx),
		exechelper.WithEnvirons(os.Environ()...),
	}
	if e.Stdout != nil {
		opts = append(opts, exechelper.WithStdout(e.Stdout))
	}
	if e.Stderr != nil {
		opts = append(opts, exechelper.WithStderr(e.Stderr))
	}
	if os.Geteuid() == 0 && uid > 0 && uid != os.Geteuid() {
		opts = append(opts, exechelper.CmdOption(func(c *exec.Cmd) error {
			c.SysProcAttr = &syscall.SysProcAttr{Credential: &syscall.Credential{Uid: uint32(uid), Gid: uint32(uid)}}
			return nil
		}))
	}

	start := time.Now()
	err := exechelper.Run(cmd, opts...)
	util.WithFields(map[string]interface{}{"uid": uid, "cmd": cmd, "took": time.Since(start)}).Infof("hook executed: err=%v", err)
	return err
}
