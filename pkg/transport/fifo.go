package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sys/unix"

	"github.com/newtron-network/vfd/pkg/dispatch"
	"github.com/newtron-network/vfd/pkg/util"
)

// FifoMode is the permission of pipes created here. Requests may come
// from any local user; admission checks the document owner instead.
const FifoMode = 0o666

// Write retry pacing for a reply pipe whose reader is slow.
const (
	writeRetryInterval = 250 * time.Millisecond
	writeRetries       = 10
)

// EnsureFifo creates a named pipe at path unless one is already there.
func EnsureFifo(path string) error {
	fi, err := os.Stat(path)
	switch {
	case err == nil:
		if fi.Mode()&os.ModeNamedPipe == 0 {
			return fmt.Errorf("%s exists and is not a fifo", path)
		}
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := unix.Mkfifo(path, FifoMode); err != nil {
		return fmt.Errorf("creating fifo %s: %w", path, err)
	}
	// mkfifo is subject to the umask
	return os.Chmod(path, FifoMode)
}

// Listener reads requests from the daemon's pipe.
type Listener struct {
	path string
}

// Listen creates the request pipe if needed.
func Listen(path string) (*Listener, error) {
	if err := EnsureFifo(path); err != nil {
		return nil, err
	}
	return &Listener{path: path}, nil
}

// Path returns the request pipe.
func (l *Listener) Path() string { return l.path }

// Serve decodes requests and sends them to out until ctx is done. A
// request that cannot be decoded is logged and dropped.
func (l *Listener) Serve(ctx context.Context, out chan<- dispatch.Request) error {
	// read-write so the pipe never reports EOF between writers
	f, err := os.OpenFile(l.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening request fifo: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = f.Close() })
	defer func() {
		if stop() {
			_ = f.Close()
		}
	}()
	return serve(ctx, f, out)
}

func serve(ctx context.Context, r io.Reader, out chan<- dispatch.Request) error {
	log := util.WithComponent("transport")
	br := bufio.NewReader(r)
	dec := json.NewDecoder(br)
	for {
		var w WireRequest
		err := dec.Decode(&w)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			var syn *json.SyntaxError
			var typ *json.UnmarshalTypeError
			if !errors.As(err, &syn) && !errors.As(err, &typ) {
				return fmt.Errorf("reading request fifo: %w", err)
			}
			// the decoder cannot resync after bad input; drop what it holds
			log.Warnf("discarding malformed request: %v", err)
			br.Reset(r)
			dec = json.NewDecoder(br)
			continue
		}
		req, err := w.ToRequest()
		if err != nil {
			log.Warnf("dropping request: %v", err)
			continue
		}
		log.WithField("vfd_rid", req.RequestID).Debugf("request received: %s %s", req.Action, req.Resource)
		select {
		case out <- req:
		case <-ctx.Done():
			return nil
		}
	}
}

// Replier writes responses to the pipe each request names.
type Replier struct {
	interval time.Duration
	retries  uint64
}

// NewReplier returns a replier that gives up on a reply pipe after about
// 2.5 seconds without progress.
func NewReplier() *Replier {
	return &Replier{interval: writeRetryInterval, retries: writeRetries}
}

// Respond implements dispatch.Responder. The pipe is opened without
// blocking so a requester that has gone away cannot stall the daemon.
func (r *Replier) Respond(ctx context.Context, req dispatch.Request, resp dispatch.Response) error {
	if req.ReplyFifo == "" {
		util.WithField("vfd_rid", req.RequestID).Info("response dropped: request named no response fifo")
		return nil
	}
	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	fd, err := unix.Open(req.ReplyFifo, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open failed: %s: %w", req.ReplyFifo, err)
	}
	defer unix.Close(fd)
	return r.write(ctx, fd, data)
}

// write retries while the pipe is full. The retry budget is restored
// whenever some bytes get through.
func (r *Replier) write(ctx context.Context, fd int, data []byte) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(r.interval), r.retries), ctx)
	total := len(data)
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		switch {
		case err != nil && !errors.Is(err, unix.EAGAIN):
			return fmt.Errorf("write error after %d of %d bytes: %w", total-len(data), total, err)
		case n > 0:
			data = data[n:]
			b.Reset()
			continue
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("write timed out after %d of %d bytes", total-len(data), total)
		}
		time.Sleep(wait)
	}
	return nil
}
